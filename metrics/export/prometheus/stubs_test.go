package prometheus

import (
	"context"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/session"
)

type nopIdentities struct{}

func (nopIdentities) FindIdentity(context.Context, session.Kind, string) (portalauth.Identity, error) {
	return portalauth.Identity{}, portalauth.ErrIdentityNotFound
}

func (nopIdentities) UpdateCredential(context.Context, session.Kind, string, string) error {
	return portalauth.ErrIdentityNotFound
}

type nopNotifier struct{}

func (nopNotifier) SendOTP(context.Context, portalauth.OTPNotice) error { return nil }

func (nopNotifier) SendPasswordReset(context.Context, portalauth.ResetNotice) error { return nil }
