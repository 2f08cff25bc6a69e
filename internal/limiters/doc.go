// Package limiters provides the Redis counters that guard account access.
//
// # Limiters
//
//   - [AttemptCounter] counts failed password checks per account under
//     failed_attempts:<id> with a rolling expiry set on the first failure.
//   - [VerificationThrottle] is a fixed-window throttle on verification code
//     requests, per email and optionally per client IP.
//
// # Architecture boundaries
//
// Each limiter owns its own Redis key namespace and error types. Thresholds
// come from values supplied at construction time.
//
// # What this package must NOT do
//
//   - Import accessgate or any sibling internal package.
//   - Make policy decisions beyond counting. The login flow decides when a
//     count revokes an account.
package limiters
