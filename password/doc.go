// Package password implements password hashing and verification with Argon2id
// defaults and read-only support for legacy bcrypt hashes.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The [Hasher] supports transparent upgrades: bcrypt hashes, and argon2id
// hashes produced with weaker parameters, report [Hasher.NeedsRehash] so the
// caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (character
// classes, minimum length) is enforced at the request boundary.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other accessgate package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
