// Package flows contains the staged pipelines behind every Engine operation.
//
// Each flow function (RunLogin, RunRegistration, RunIssueCode, RunVerifyCode)
// accepts a typed dependency struct and returns a tagged [Step] instead of an
// error. Stages are scheduled on the worker pool for their workload class and
// chained with futures, so a stage starts only once its predecessor resolved.
// A rejected or unavailable stage short-circuits the rest of the chain.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the account gateway, failed-attempt
// counter, code store, token minting, audit and metrics. They do NOT own any
// of these resources, and they do not apply resilience policies: the Engine
// hands in closures that are already guarded.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import accessgate (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency closures.
//   - Log unmasked email addresses.
package flows
