// Package jwt mints and verifies the access and refresh tokens returned by a
// successful login. HS256 is the default; ed25519 is available for
// deployments that verify tokens outside the issuing process.
package jwt
