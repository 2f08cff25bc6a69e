// Package accessgate is an account-access gateway: it authenticates email and
// password logins, revokes accounts after repeated failed attempts, and runs
// email verification with one-time codes.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Each operation runs as a chain of stages on bounded worker
// pools, one pool per workload class, and every call to the account store,
// redis or the mailer goes through a retrying circuit breaker. Operations
// return a [Result] instead of an error: a business rejection carries a
// [Reason], a dependency failure is [KindUnavailable].
//
// # Architecture boundaries
//
// accessgate is the public surface: [Engine], [Builder], [Config] and the
// value types. Flow orchestration, pools, breakers, the failure counter and
// the code store live under internal/. Concrete account stores, mailers and
// the HTTP transport live in sibling packages and depend on this one, never
// the other way round.
//
// # What this package must NOT do
//
//   - Return a raw dependency error or panic from an Engine operation.
//   - Log an email address unmasked or any password hash.
//   - Block a request on mail delivery.
package accessgate
