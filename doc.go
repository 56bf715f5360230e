// Package portalauth is the authentication and session core of the brokerage
// portal: one-time codes, password reset links, password login, signed
// session cookies and capability checks for admins and members.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// portalauth is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (Identity, Purpose, ResetRef). Flow orchestration, token
// stores, rate limiting and audit dispatch live under internal/ and are never
// exported. Account storage and email delivery are supplied by the caller as
// an [IdentityProvider] and a [Notifier].
//
// # What this package must NOT do
//
//   - Return or log plaintext codes, reset tokens or passwords.
//   - Reveal whether an email has an account on request paths.
//   - Import identity or notify (they import portalauth).
package portalauth
