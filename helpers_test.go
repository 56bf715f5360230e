package portalauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockIdentityProvider struct {
	mu         sync.Mutex
	identities map[session.Kind]map[string]Identity
	findErr    error
	updateErr  error
	// onUpdate runs before each credential write, outside the lock.
	onUpdate func()

	findCalls   int
	updateCalls int
}

func newMockIdentityProvider(idents ...Identity) *mockIdentityProvider {
	m := &mockIdentityProvider{identities: map[session.Kind]map[string]Identity{
		session.KindAdmin:  {},
		session.KindMember: {},
	}}
	for _, ident := range idents {
		m.identities[ident.Kind][ident.Email] = ident
	}
	return m
}

func (m *mockIdentityProvider) FindIdentity(_ context.Context, kind session.Kind, email string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.findErr != nil {
		return Identity{}, m.findErr
	}
	ident, ok := m.identities[kind][email]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return ident, nil
}

func (m *mockIdentityProvider) UpdateCredential(_ context.Context, kind session.Kind, email, credential string) error {
	m.mu.Lock()
	hook := m.onUpdate
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	ident, ok := m.identities[kind][email]
	if !ok {
		return ErrIdentityNotFound
	}
	if ident.Immutable {
		return ErrImmutableIdentity
	}
	ident.Credential = credential
	m.identities[kind][email] = ident
	return nil
}

func (m *mockIdentityProvider) ListIdentities(_ context.Context, kind session.Kind) ([]Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Identity, 0, len(m.identities[kind]))
	for _, ident := range m.identities[kind] {
		out = append(out, ident)
	}
	return out, nil
}

func (m *mockIdentityProvider) remove(kind session.Kind, email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities[kind], email)
}

func (m *mockIdentityProvider) credential(kind session.Kind, email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identities[kind][email].Credential
}

type recordingNotifier struct {
	mu     sync.Mutex
	otps   []OTPNotice
	resets []ResetNotice
	err    error
}

func (n *recordingNotifier) SendOTP(_ context.Context, notice OTPNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.otps = append(n.otps, notice)
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, notice ResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resets = append(n.resets, notice)
	return nil
}

func (n *recordingNotifier) lastOTP(t *testing.T) OTPNotice {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.otps) == 0 {
		t.Fatal("expected an OTP notice")
	}
	return n.otps[len(n.otps)-1]
}

func (n *recordingNotifier) lastReset(t *testing.T) ResetNotice {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		t.Fatal("expected a reset notice")
	}
	return n.resets[len(n.resets)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.otps) + len(n.resets)
}

func testAdmin() Identity {
	return Identity{
		ID:          "adm_1",
		Kind:        session.KindAdmin,
		Email:       "agent@premproperties.example",
		Name:        "Asha Agent",
		Role:        permission.RoleSubAdmin,
		Permissions: permission.NewSet(permission.Properties, permission.Inquiries),
		Credential:  "Legacy-Pass1",
		Active:      true,
	}
}

func testMember() Identity {
	return Identity{
		ID:         "mem_1",
		Kind:       session.KindMember,
		Email:      "buyer@example.com",
		Name:       "Bo Buyer",
		Role:       permission.RoleMember,
		Credential: "",
		Active:     true,
	}
}

// engineTestConfig keeps argon2 cheap and disables the enumeration delay and
// rate limits; tests that need them turn them back on.
func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Session.Secret = []byte(strings.Repeat("k", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Delivery.EnumerationDelayMin = 0
	cfg.Delivery.EnumerationDelaySpread = 0
	cfg.RateLimit.Enabled = false
	cfg.PasswordReset.LinkBase = "https://premproperties.example"
	return cfg
}

type testEngineOptions struct {
	cfg        *Config
	redis      redis.UniversalClient
	auditSink  AuditSink
	identities *mockIdentityProvider
	notifier   *recordingNotifier
}

type testEngine struct {
	*Engine
	clock      *testClock
	identities *mockIdentityProvider
	notifier   *recordingNotifier
}

func newTestEngine(t *testing.T, opts testEngineOptions) *testEngine {
	t.Helper()

	cfg := engineTestConfig()
	if opts.cfg != nil {
		cfg = *opts.cfg
	}
	if opts.identities == nil {
		opts.identities = newMockIdentityProvider(testAdmin(), testMember())
	}
	if opts.notifier == nil {
		opts.notifier = &recordingNotifier{}
	}
	clock := newTestClock()

	b := New().
		WithConfig(cfg).
		WithClock(clock.Now).
		WithIdentityProvider(opts.identities).
		WithNotifier(opts.notifier)
	if opts.redis != nil {
		b = b.WithRedis(opts.redis)
	}
	if opts.auditSink != nil {
		b = b.WithAuditSink(opts.auditSink)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		Engine:     engine,
		clock:      clock,
		identities: opts.identities,
		notifier:   opts.notifier,
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

// newRedisTestEngine runs the engine with redis-backed tokens and limiters.
func newRedisTestEngine(t *testing.T, cfg Config) *testEngine {
	t.Helper()
	_, rdb := newTestRedis(t)
	cfg.TokenStore.Backend = TokenStoreRedis
	return newTestEngine(t, testEngineOptions{cfg: &cfg, redis: rdb})
}
