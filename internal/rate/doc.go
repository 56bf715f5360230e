// Package rate provides sliding-window rate limit primitives.
//
// # Window semantics
//
// A window admits at most Limit hits in any trailing Period. The Redis backend
// keeps one sorted set per key scored by hit time (ZREMRANGEBYSCORE, ZADD, ZCARD
// and PEXPIRE in one MULTI); the memory backend keeps the same log in go-cache.
// Denied hits are not recorded, so a caller that stops retrying regains budget
// as the oldest hits age out.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the portalauth module.
package rate
