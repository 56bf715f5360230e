package portalauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/premproperties/portalauth/internal"
	internalaudit "github.com/premproperties/portalauth/internal/audit"
	internalflows "github.com/premproperties/portalauth/internal/flows"
	"github.com/premproperties/portalauth/internal/limiters"
	"github.com/premproperties/portalauth/internal/stores"
	"github.com/premproperties/portalauth/password"
	"github.com/premproperties/portalauth/session"
	"go.uber.org/zap"
)

// Engine is the portal's authentication core. It is safe for concurrent use
// once built.
type Engine struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	tokens     stores.TokenStore
	limiter    *limiters.AuthLimiter
	identities IdentityProvider
	notifier   Notifier
	verifier   *password.Verifier
	codec      *session.Codec
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
}

// Close flushes queued audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Logger returns the engine logger for collaborators that log alongside it.
func (e *Engine) Logger() *zap.Logger {
	if e == nil || e.logger == nil {
		return zap.NewNop()
	}
	return e.logger
}

// EnsureTokenSchema creates the token table when the postgres backend is in
// use. Other backends need no schema.
func (e *Engine) EnsureTokenSchema(ctx context.Context) error {
	pg, ok := e.tokens.(*stores.PostgresTokenStore)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.TokenStore.OpTimeout)
	defer cancel()
	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.tokens != nil && e.identities != nil && e.notifier != nil && e.verifier != nil && e.codec != nil
}

// normalizeRequest canonicalizes email and checks that purpose belongs to
// the flow being run.
func normalizeRequest(email string, purpose Purpose, allowed func(Purpose) bool) (string, Purpose, error) {
	purpose = Purpose(strings.ToLower(strings.TrimSpace(string(purpose))))
	if !purpose.Valid() || !allowed(purpose) {
		return "", "", ErrInvalidPurpose
	}
	normalized, err := normalizeEmail(email)
	if err != nil {
		return "", "", err
	}
	return normalized, purpose, nil
}

func normalizeEmail(email string) (string, error) {
	normalized := stores.NormalizeEmail(email)
	if normalized == "" || len(normalized) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

/*
====================================
FLOW DEPENDENCIES
====================================
*/

// commonFlowDeps wires the dependencies shared by every flow. found receives
// the full identity behind the flow-local view when a lookup succeeds.
func (e *Engine) commonFlowDeps(kind session.Kind, found *Identity) internalflows.Common {
	return internalflows.Common{
		Logger:              e.logger,
		Now:                 e.now,
		ClientIPFromContext: clientIPFromContext,
		MapLimiterError:     mapLimiterError,
		MapStoreError:       mapStoreError,
		LookupIdentity: func(ctx context.Context, email string) (internalflows.Identity, error) {
			ident, err := e.findIdentity(ctx, kind, email)
			if err != nil {
				return internalflows.Identity{}, err
			}
			if found != nil {
				*found = ident
			}
			return flowIdentity(ident), nil
		},
		IsIdentityNotFound: func(err error) bool {
			return errors.Is(err, ErrIdentityNotFound)
		},
		SleepEnumerationDelay: e.sleepEnumerationDelay,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit: func(ctx context.Context, event string, success bool, subject string, err error, meta func() map[string]string) {
			e.emitAudit(ctx, event, success, subject, kind, err, meta)
		},
		EmitRateLimit: func(ctx context.Context, scope string, meta func() map[string]string) {
			e.emitRateLimit(ctx, scope, kind, meta)
		},
	}
}

func (e *Engine) tokenFlowDeps() internalflows.TokenDeps {
	return internalflows.TokenDeps{
		Put: func(ctx context.Context, rec stores.TokenRecord) error {
			return e.withStoreTimeout(ctx, func(ctx context.Context) error {
				return e.tokens.Put(ctx, rec)
			})
		},
		Delete: func(ctx context.Context, email, purpose, id string) error {
			return e.withStoreTimeout(ctx, func(ctx context.Context) error {
				return e.tokens.Delete(ctx, email, purpose, id)
			})
		},
		Update: func(ctx context.Context, email, purpose string, fn stores.UpdateFunc) error {
			return e.withStoreTimeout(ctx, func(ctx context.Context) error {
				return e.tokens.Update(ctx, email, purpose, fn)
			})
		},
		NewID:  uuid.NewString,
		Digest: internal.DigestSecret,
		Equal:  password.EqualCode,
	}
}

func (e *Engine) findIdentity(ctx context.Context, kind session.Kind, email string) (Identity, error) {
	var ident Identity
	err := e.withStoreTimeout(ctx, func(ctx context.Context) error {
		var err error
		ident, err = e.identities.FindIdentity(ctx, kind, email)
		return err
	})
	return ident, err
}

func flowIdentity(ident Identity) internalflows.Identity {
	return internalflows.Identity{
		ID:         ident.ID,
		Email:      ident.Email,
		Name:       ident.Name,
		Credential: ident.Credential,
		Active:     ident.Active,
		Immutable:  ident.Immutable,
	}
}

// withStoreTimeout bounds a token store call by TokenStore.OpTimeout. A
// timeout of the store call itself, as opposed to the caller's context,
// reports ErrStorage.
func (e *Engine) withStoreTimeout(ctx context.Context, fn func(context.Context) error) error {
	opCtx, cancel := context.WithTimeout(ctx, e.config.TokenStore.OpTimeout)
	defer cancel()
	err := fn(opCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return err
}

// deliver runs a notifier call under Delivery.Timeout and records its
// latency.
func (e *Engine) deliver(ctx context.Context, send func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.config.Delivery.Timeout)
	defer cancel()
	start := time.Now()
	err := send(ctx)
	if e.metrics != nil {
		e.metrics.Observe(MetricDeliveryLatency, time.Since(start))
	}
	return err
}

func (e *Engine) sleepEnumerationDelay(ctx context.Context) error {
	minMillis := e.config.Delivery.EnumerationDelayMin.Milliseconds()
	spread := e.config.Delivery.EnumerationDelaySpread.Milliseconds()
	delay, err := internal.RandomDelay(minMillis, spread)
	if err != nil {
		delay = minMillis
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(delay) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func mapLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrAuthRateLimited):
		return ErrRateLimited
	case errors.Is(err, limiters.ErrAuthUnavailable):
		return nil
	default:
		return err
	}
}

func mapStoreError(err error) error {
	if err == nil || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
