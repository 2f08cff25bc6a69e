package password

import (
	"errors"
	"fmt"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	minPassBytes          = 8

	// DefaultMaxPasswordBytes caps input length when Config leaves it unset.
	DefaultMaxPasswordBytes = 1024
)

var (
	ErrPasswordTooShort = errors.New("password must be at least 8 bytes")
	ErrPasswordTooLong  = errors.New("password exceeds maximum length")
	ErrInvalidConfig    = errors.New("invalid password hashing config")
)

// Config holds argon2id cost parameters and the accepted input length.
type Config struct {
	Memory           uint32 // KiB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

func (c Config) withDefaults() Config {
	if c.MaxPasswordBytes == 0 {
		c.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return c
}

// validate reports every problem at once.
func (c Config) validate() error {
	var errs []error
	if c.Memory < minMemoryKB {
		errs = append(errs, fmt.Errorf("memory %d KiB is below %d", c.Memory, minMemoryKB))
	}
	if c.Time == 0 {
		errs = append(errs, errors.New("time must be >= 1"))
	}
	if c.Parallelism == 0 {
		errs = append(errs, errors.New("parallelism must be >= 1"))
	}
	if c.SaltLength < minSaltLength {
		errs = append(errs, fmt.Errorf("salt length %d is below %d", c.SaltLength, minSaltLength))
	}
	if c.KeyLength < minKeyLength {
		errs = append(errs, fmt.Errorf("key length %d is below %d", c.KeyLength, minKeyLength))
	}
	if c.MaxPasswordBytes < minPassBytes {
		errs = append(errs, fmt.Errorf("max password bytes %d is below %d", c.MaxPasswordBytes, minPassBytes))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func checkLength(password string, max int) error {
	switch {
	case len(password) < minPassBytes:
		return ErrPasswordTooShort
	case len(password) > max:
		return ErrPasswordTooLong
	}
	return nil
}
