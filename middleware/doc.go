// Package middleware adapts Engine access-token validation to net/http.
//
// [RequireAccess] reads the Authorization header, calls
// Engine.ValidateAccess and stores the resulting identity in the request
// context, where handlers read it with [IdentityFromContext]. Validation is
// stateless: a revoked account keeps a working access token until it
// expires, and only refresh is refused.
package middleware
