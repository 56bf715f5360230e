package identity

import (
	"context"
	"errors"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/session"
)

// Directory sends admin lookups to one provider and member lookups to
// another.
type Directory struct {
	Admins  portalauth.IdentityProvider
	Members portalauth.IdentityProvider
}

var (
	_ portalauth.IdentityProvider = (*Directory)(nil)
	_ portalauth.IdentityLister   = (*Directory)(nil)
)

var errNoProvider = errors.New("no identity provider for kind")

func (d *Directory) route(kind session.Kind) (portalauth.IdentityProvider, error) {
	var p portalauth.IdentityProvider
	switch kind {
	case session.KindAdmin:
		p = d.Admins
	case session.KindMember:
		p = d.Members
	}
	if p == nil {
		return nil, errNoProvider
	}
	return p, nil
}

func (d *Directory) FindIdentity(ctx context.Context, kind session.Kind, email string) (portalauth.Identity, error) {
	p, err := d.route(kind)
	if err != nil {
		return portalauth.Identity{}, err
	}
	return p.FindIdentity(ctx, kind, email)
}

func (d *Directory) UpdateCredential(ctx context.Context, kind session.Kind, email, credential string) error {
	p, err := d.route(kind)
	if err != nil {
		return err
	}
	return p.UpdateCredential(ctx, kind, email, credential)
}

func (d *Directory) ListIdentities(ctx context.Context, kind session.Kind) ([]portalauth.Identity, error) {
	p, err := d.route(kind)
	if err != nil {
		return nil, err
	}
	lister, ok := p.(portalauth.IdentityLister)
	if !ok {
		return nil, errors.New("identity provider cannot list identities")
	}
	return lister.ListIdentities(ctx, kind)
}
