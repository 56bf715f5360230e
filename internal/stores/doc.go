// Package stores persists short-lived one-time code and reset-token records
// keyed by (email, purpose).
//
// # Design
//
// Every backend implements [TokenStore]. Put is an upsert: a newer record for
// the same key replaces the older one and receives a fresh ID. Update is the
// single mutation primitive for verification paths and is atomic per key:
// Redis uses WATCH/MULTI with retry, Postgres uses SELECT ... FOR UPDATE inside a
// transaction, and the in-memory store serializes callers with a per-key mutex.
// Stored values are digests; plaintext codes and tokens never reach a backend.
//
// Records are retained for ExpiresAt-CreatedAt plus a grace period so a read
// slightly past the logical expiry still observes the record and can report it
// as expired rather than missing.
//
// # What this package must NOT do
//
//   - Import portalauth or any sibling internal package except for tests.
//   - Decide whether a record is expired, exhausted or matched. Flows do that
//     inside the Update callback.
//   - Log record values.
package stores
