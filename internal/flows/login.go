package flows

import (
	"context"

	"go.uber.org/zap"
)

// LoginMetrics carries metric IDs needed by the password login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LegacyCredential int
}

type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

type LoginErrors struct {
	EngineNotReady error
	Mismatch       error
	Unauthorized   error
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Common

	CheckLoginRate func(ctx context.Context, email, ip string) error
	ResetLoginRate func(ctx context.Context, email, ip string) error

	VerifyPassword func(plain, stored string) bool
	BurnPassword   func(plain string)
	NeedsRehash    func(stored string) bool
	IsHashed       func(stored string) bool
	HashPassword   func(string) (string, error)
	// UpdateCredential persists an upgraded hash. It may be nil for read-only
	// identity sources.
	UpdateCredential func(ctx context.Context, email, hash string) error

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunPasswordLogin authenticates email and password. Unknown, inactive and
// wrong-password outcomes are indistinguishable to the caller.
func RunPasswordLogin(ctx context.Context, email, password string, deps LoginDeps) (Identity, error) {
	normalizeCommon(&deps.Common)
	if deps.LookupIdentity == nil || deps.VerifyPassword == nil {
		return Identity{}, deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	meta := func() map[string]string {
		return map[string]string{"email": email}
	}
	if deps.CheckLoginRate != nil {
		if err := checkLimiter(ctx, deps.Common, "login", deps.Events.LoginFailure, func() error {
			return deps.CheckLoginRate(ctx, email, ip)
		}, meta); err != nil {
			return Identity{}, err
		}
	}

	fail := func(subject string, err error) (Identity, error) {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, subject, err, meta)
		return Identity{}, err
	}

	ident, err := deps.LookupIdentity(ctx, email)
	if err != nil {
		if isContextError(err) {
			return Identity{}, err
		}
		if !deps.IsIdentityNotFound(err) {
			deps.Logger.Error("identity lookup failed", zap.Error(err))
			return fail("", deps.MapStoreError(err))
		}
		if deps.BurnPassword != nil {
			deps.BurnPassword(password)
		}
		return fail("", deps.Errors.Mismatch)
	}

	if !deps.VerifyPassword(password, ident.Credential) {
		return fail(ident.ID, deps.Errors.Mismatch)
	}
	if !ident.Active {
		return fail(ident.ID, deps.Errors.Unauthorized)
	}

	if deps.IsHashed != nil && !deps.IsHashed(ident.Credential) {
		deps.MetricInc(deps.Metrics.LegacyCredential)
	}
	if deps.NeedsRehash != nil && deps.NeedsRehash(ident.Credential) && deps.HashPassword != nil && deps.UpdateCredential != nil && !ident.Immutable {
		upgradeCredential(ctx, email, password, deps)
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, email, ip); err != nil {
			deps.Logger.Warn("login limiter reset failed", zap.Error(err))
		}
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, ident.ID, nil, meta)
	return ident, nil
}

func upgradeCredential(ctx context.Context, email, password string, deps LoginDeps) {
	hash, err := deps.HashPassword(password)
	if err != nil {
		deps.Logger.Error("credential rehash failed", zap.Error(err))
		return
	}
	if err := deps.UpdateCredential(ctx, email, hash); err != nil {
		deps.Logger.Error("credential upgrade not persisted", zap.Error(err))
		return
	}
	deps.Logger.Info("credential upgraded to argon2id", zap.String("email", email))
}
