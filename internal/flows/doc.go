// Package flows contains the orchestration for every Engine operation.
//
// Each flow function (RunRequestOTP, RunVerifyOTP, RunFinalizePasswordReset,
// RunPasswordLogin) accepts a typed dependency struct built by the Engine and
// returns results without side-effects beyond those dependencies.
//
// # Architecture boundaries
//
// Flows coordinate the token store, identity lookups, notifier delivery,
// rate limiting, audit, metrics and logging. They do not own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import portalauth (to avoid import cycles).
//   - Return plaintext codes or tokens to callers.
package flows
