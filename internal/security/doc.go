// Package security derives a posture report from the effective Engine
// configuration and flags settings weaker than recommended.
package security
