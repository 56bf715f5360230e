// Package session defines the authenticated session shape, its signed cookie
// encoding, and the access checks evaluated against a decoded session.
//
// # Encoding
//
// A [Session] is carried as an HS256-signed JWT inside the admin-session or
// member-session cookie. [Codec.Decode] validates the signature, issuer and
// expiry, then checks the fixed schema for the session kind; any failure yields
// nil. Decoding never panics and tolerates URL-encoded cookie values.
//
// # Architecture boundaries
//
// This package owns the [Session] model, the [Codec], the cookie attributes, and
// the pure gate predicates ([IsAuthenticated], [HasPermission], [HasRole]). It does
// not look up identities or issue sessions; the Engine does.
//
// # What this package must NOT do
//
//   - Import portalauth or middleware (no upward imports).
//   - Accept unsigned or differently signed payloads.
//   - Store credentials or one-time codes in a [Session].
package session
