package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// ErrMalformedHash is returned for argon2id strings that cannot be parsed or
// carry parameters below the accepted floor.
var ErrMalformedHash = errors.New("malformed argon2id hash")

// params are the cost settings a PHC string records.
type params struct {
	memory uint32 // KiB
	passes uint32
	lanes  uint8
	keyLen uint32
}

func (p params) weakerThan(want params) bool {
	return p.memory < want.memory ||
		p.passes < want.passes ||
		p.lanes < want.lanes ||
		p.keyLen != want.keyLen
}

// phc is one decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	params
	salt []byte
	key  []byte
}

func (h phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.passes, h.memory, h.lanes, h.keyLen)
}

// String encodes salt and key unpadded, as the PHC format specifies.
func (h phc) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, h.memory, h.passes, h.lanes,
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key))
}

func parsePHC(encoded string) (phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return phc{}, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil {
		return phc{}, fmt.Errorf("%w: version %q", ErrMalformedHash, fields[2])
	}
	if version != argon2.Version {
		return phc{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var h phc
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &h.memory, &h.passes, &h.lanes); err != nil {
		return phc{}, fmt.Errorf("%w: parameters %q", ErrMalformedHash, fields[3])
	}
	if h.memory < minMemoryKB || h.passes == 0 || h.lanes == 0 {
		return phc{}, fmt.Errorf("%w: parameters %q below floor", ErrMalformedHash, fields[3])
	}

	var err error
	if h.salt, err = decodeSegment(fields[4]); err != nil || len(h.salt) < int(minSaltLength) {
		return phc{}, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if h.key, err = decodeSegment(fields[5]); err != nil || len(h.key) == 0 {
		return phc{}, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	h.keyLen = uint32(len(h.key))
	return h, nil
}

// decodeSegment accepts padded and unpadded base64 so hashes written by
// other argon2 libraries still verify.
func decodeSegment(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Argon2 writes argon2id hashes with one fixed parameter set and checks
// hashes written with any parameter set.
type Argon2 struct {
	want    params
	saltLen uint32
	maxLen  int
}

func NewArgon2(cfg Config) (*Argon2, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{
		want: params{
			memory: cfg.Memory,
			passes: cfg.Time,
			lanes:  cfg.Parallelism,
			keyLen: cfg.KeyLength,
		},
		saltLen: cfg.SaltLength,
		maxLen:  cfg.MaxPasswordBytes,
	}, nil
}

// Hash uses the raw bytes of password, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if err := checkLength(password, a.maxLen); err != nil {
		return "", err
	}

	h := phc{params: a.want, salt: make([]byte, a.saltLen)}
	if _, err := rand.Read(h.salt); err != nil {
		return "", err
	}
	h.key = h.derive(password)
	return h.String(), nil
}

// Verify rederives with the stored parameters and compares in constant time.
// Oversized input is refused before any key derivation.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	if len(password) > a.maxLen {
		return false, ErrPasswordTooLong
	}
	stored, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(stored.derive(password), stored.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was written with weaker parameters
// than the configured ones.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	stored, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	return stored.weakerThan(a.want), nil
}
