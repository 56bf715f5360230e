package portalauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/premproperties/portalauth/password"
	"github.com/premproperties/portalauth/session"
	"go.uber.org/zap"
)

// MigrateLegacyCredentials hashes every plaintext credential of kind with
// argon2id. Already hashed credentials and the immutable master admin are
// skipped, so a second run migrates nothing.
func (e *Engine) MigrateLegacyCredentials(ctx context.Context, kind session.Kind) (MigrationReport, error) {
	var report MigrationReport
	if !e.ready() {
		return report, ErrEngineNotReady
	}
	lister, ok := e.identities.(IdentityLister)
	if !ok {
		return report, errors.New("identity provider cannot list identities")
	}

	idents, err := lister.ListIdentities(ctx, kind)
	if err != nil {
		return report, mapStoreError(err)
	}

	for _, ident := range idents {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if ident.Immutable || ident.Credential == "" || password.IsHashed(ident.Credential) {
			report.Skipped++
			continue
		}

		hash, err := e.verifier.Hash(ident.Credential)
		if err != nil {
			report.Failed++
			e.logger.Error("credential migration hash failed", zap.String("id", ident.ID), zap.Error(err))
			continue
		}
		err = e.withStoreTimeout(ctx, func(ctx context.Context) error {
			return e.identities.UpdateCredential(ctx, kind, ident.Email, hash)
		})
		if err != nil {
			report.Failed++
			e.logger.Error("credential migration update failed", zap.String("id", ident.ID), zap.Error(err))
			continue
		}

		report.Migrated++
		e.emitAudit(ctx, auditEventCredentialMigrated, true, ident.ID, kind, nil, nil)
	}

	e.logger.Info("credential migration finished",
		zap.String("kind", string(kind)),
		zap.Int("migrated", report.Migrated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed))

	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d credentials not migrated", ErrStorage, report.Failed)
	}
	return report, nil
}
