// Package internal contains helpers that are private to accessgate, chiefly
// the numeric one-time-code generator.
//
// # Sub-packages
//
//   - audit: async event dispatch to a Sink
//   - flows: login, registration and verification pipelines
//   - ids: snowflake account identifiers
//   - limiters: failed-attempt counter and verification request throttle
//   - mask: email and identifier redaction for logs
//   - resilience: retry, circuit breaker and fallback guards
//   - security: startup security report
//   - stores: redis-backed one-time-code store
//   - workers: bounded worker pools and futures
//
// Nothing here may appear in the public accessgate API.
package internal
