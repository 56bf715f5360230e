package portalauth

import (
	"errors"
	"time"

	internalaudit "github.com/premproperties/portalauth/internal/audit"
	"github.com/premproperties/portalauth/internal/limiters"
	"github.com/premproperties/portalauth/internal/rate"
	"github.com/premproperties/portalauth/internal/stores"
	"github.com/premproperties/portalauth/password"
	"github.com/premproperties/portalauth/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PostgresPool is satisfied by *pgxpool.Pool and pgxmock pools.
type PostgresPool = stores.PgxPool

// Builder assembles an Engine. A Builder is single-use.
type Builder struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	redis    redis.UniversalClient
	postgres PostgresPool

	identities IdentityProvider
	notifier   Notifier
	auditSink  AuditSink

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRedis supplies the client used by the redis token store and by the
// rate limiters. Without it, rate limiting falls back to process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithPostgres(pool PostgresPool) *Builder {
	b.postgres = pool
	return b
}

func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identities = p
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for expiry decisions and session timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.identities == nil {
		return nil, errors.New("identity provider required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- TOKEN STORE --------
	var tokens stores.TokenStore
	switch cfg.TokenStore.Backend {
	case TokenStoreRedis:
		if b.redis == nil {
			return nil, errors.New("redis token store requires a redis client")
		}
		tokens = stores.NewRedisTokenStore(b.redis, cfg.TokenStore.RedisPrefix)
	case TokenStorePostgres:
		if b.postgres == nil {
			return nil, errors.New("postgres token store requires a pool")
		}
		tokens = stores.NewPostgresTokenStore(b.postgres)
	default:
		tokens = stores.NewMemoryTokenStore(cfg.TokenStore.SweepInterval)
	}

	// -------- CREDENTIALS --------
	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	verifier, err := password.NewVerifier(hasher, logger.Named("credentials"))
	if err != nil {
		return nil, err
	}

	// -------- SESSIONS --------
	codec, err := session.NewCodec(session.CodecConfig{
		Secret: cfg.Session.Secret,
		Issuer: cfg.Session.Issuer,
		Leeway: cfg.Session.Leeway,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		logger:     logger,
		now:        now,
		tokens:     tokens,
		identities: b.identities,
		notifier:   b.notifier,
		verifier:   verifier,
		codec:      codec,
		metrics:    NewMetrics(cfg.Metrics),
	}

	if cfg.RateLimit.Enabled {
		engine.limiter = limiters.NewAuthLimiter(b.redis, cfg.RateLimit.RedisPrefix, limiters.AuthConfig{
			Login:   rate.Window{Limit: cfg.RateLimit.LoginLimit, Period: cfg.RateLimit.LoginWindow},
			Verify:  rate.Window{Limit: cfg.RateLimit.VerifyLimit, Period: cfg.RateLimit.VerifyWindow},
			Request: rate.Window{Limit: cfg.RateLimit.RequestLimit, Period: cfg.RateLimit.RequestWindow},
			LoginAccount: rate.Window{
				Limit:  cfg.RateLimit.AccountLoginLimit,
				Period: cfg.RateLimit.AccountLoginWindow,
			},
			RequestAccount: rate.Window{
				Limit:  cfg.RateLimit.AccountRequestLimit,
				Period: cfg.RateLimit.AccountRequestWindow,
			},
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)

	b.built = true
	return engine, nil
}
