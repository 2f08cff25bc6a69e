// Package stores provides the Redis-backed one-time-code store used by the
// email verification workflow.
//
// # Design
//
// A code lives under otp:<email>:<PURPOSE> as a plain zero-padded numeric
// string with a TTL. Issuing overwrites the previous code, so at most one
// code is live per key. Codes are single use: Consume compares and deletes in
// one Lua script, so concurrent submissions of a matching code succeed once,
// and the verification flow consumes before it touches the account.
//
// # Architecture boundaries
//
// This package owns the otp: key namespace. It does NOT enforce request
// throttles or decide what a matching code means. Those belong to
// internal/limiters and internal/flows.
//
// # What this package must NOT do
//
//   - Import accessgate or any sibling package other than internal.
//   - Log or expose codes.
//   - Use non-constant-time comparisons for code matching.
package stores
