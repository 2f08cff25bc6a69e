package password

import (
	"errors"
	"strings"
)

// ErrUnknownHashFormat is returned for stored hashes neither scheme recognizes.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Scheme is the algorithm a stored hash was written with.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	SchemeArgon2id
	SchemeBcrypt
)

// SchemeOf classifies encoded by its prefix.
func SchemeOf(encoded string) Scheme {
	switch {
	case strings.HasPrefix(encoded, argon2Prefix):
		return SchemeArgon2id
	case IsBcrypt(encoded):
		return SchemeBcrypt
	default:
		return SchemeUnknown
	}
}

// Hasher writes argon2id and reads both argon2id and legacy bcrypt hashes,
// so accounts imported with bcrypt hashes can log in and be rehashed.
type Hasher struct {
	argon  *Argon2
	legacy *Bcrypt
}

func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a, legacy: NewBcrypt(0)}, nil
}

func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify applies the argon2id length cap to both schemes.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	switch SchemeOf(encoded) {
	case SchemeArgon2id:
		return h.argon.Verify(password, encoded)
	case SchemeBcrypt:
		if len(password) > h.argon.maxLen {
			return false, ErrPasswordTooLong
		}
		return h.legacy.Verify(password, encoded)
	default:
		return false, ErrUnknownHashFormat
	}
}

// NeedsRehash is true for every bcrypt hash and for argon2id hashes with
// weaker parameters than the current configuration.
func (h *Hasher) NeedsRehash(encoded string) bool {
	switch SchemeOf(encoded) {
	case SchemeBcrypt:
		return true
	case SchemeArgon2id:
		upgrade, err := h.argon.NeedsUpgrade(encoded)
		return err == nil && upgrade
	default:
		return false
	}
}
