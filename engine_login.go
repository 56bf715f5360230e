package portalauth

import (
	"context"

	internalflows "github.com/premproperties/portalauth/internal/flows"
	"github.com/premproperties/portalauth/password"
	"github.com/premproperties/portalauth/session"
)

// LoginWithPassword authenticates an admin or member by password. Unknown
// accounts and wrong passwords both return ErrMismatch after comparable
// work. A legacy plaintext or outdated hash is upgraded to argon2id on
// success when Password.UpgradeOnLogin is set.
func (e *Engine) LoginWithPassword(ctx context.Context, kind session.Kind, email, plain string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if _, ok := session.ParseKind(string(kind)); !ok {
		return nil, ErrInvalidPurpose
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	var found Identity
	if _, err := internalflows.RunPasswordLogin(ctx, email, plain, e.loginFlowDeps(kind, &found)); err != nil {
		return nil, err
	}
	return &found, nil
}

func (e *Engine) loginFlowDeps(kind session.Kind, found *Identity) internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		Common:         e.commonFlowDeps(kind, found),
		VerifyPassword: e.verifier.Verify,
		BurnPassword:   e.verifier.Burn,
		IsHashed:       password.IsHashed,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LegacyCredential: int(MetricLegacyCredential),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady: ErrEngineNotReady,
			Mismatch:       ErrMismatch,
			Unauthorized:   ErrUnauthorized,
		},
	}

	if e.config.Password.UpgradeOnLogin {
		deps.NeedsRehash = e.verifier.NeedsRehash
		deps.HashPassword = e.verifier.Hash
		deps.UpdateCredential = func(ctx context.Context, email, hash string) error {
			return e.withStoreTimeout(ctx, func(ctx context.Context) error {
				return e.identities.UpdateCredential(ctx, kind, email, hash)
			})
		}
	}
	if e.limiter != nil {
		deps.CheckLoginRate = e.limiter.CheckLogin
		deps.ResetLoginRate = e.limiter.ResetLogin
	}
	return deps
}
