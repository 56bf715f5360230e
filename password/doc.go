// Package password owns credential hashing, verification, and the strength
// policy applied to new credentials.
//
// # Output format
//
// New hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Verifier] also accepts bcrypt hashes ($2a$, $2b$, $2y$) written by the
// previous portal, and legacy plaintext values, which it compares in constant
// time while logging that migration is pending. [Verifier.NeedsRehash] lets
// callers upgrade any non-argon2id credential on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve credentials. Callers supply plaintext and receive hashes.
//   - Import any other portalauth package.
//   - Log plaintext passwords.
package password
