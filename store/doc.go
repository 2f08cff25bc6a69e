// Package store groups the AccountStore implementations: memory for tests
// and single-process demos, postgres (gorm) and mongo for deployments.
package store
