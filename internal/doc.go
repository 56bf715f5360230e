// Package internal holds helpers private to portalauth: secure random
// generation for OTP codes and reset tokens.
//
// Sub-packages:
//
//   - audit: async event dispatch to a Sink
//   - flows: the OTP, reset and login orchestrations behind Engine methods
//   - limiters: login, verify and request limiters keyed by IP and email
//   - rate: sliding-window limiter primitives on Redis or memory
//   - stores: the token store backends
//   - httpapi, appconfig, logging: process wiring for cmd/portalauth
package internal
