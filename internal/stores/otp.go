package stores

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/accessgate/internal"
	"github.com/redis/go-redis/v9"
)

// Purpose names what a one-time code unlocks. The set is closed.
type Purpose string

const (
	PurposeEmailVerification Purpose = "EMAIL_VERIFICATION"
)

const (
	DefaultCodeTTL    = 600 * time.Second
	DefaultCodeDigits = 6
)

var (
	ErrUnknownPurpose    = errors.New("unknown code purpose")
	ErrCodeStoreFailure  = errors.New("code store unavailable")
	ErrCodeGeneration    = errors.New("code generation failed")
	ErrMissingCodeTarget = errors.New("code target email is empty")
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerification:
		return true
	default:
		return false
	}
}

// CodeStoreConfig configures code width, lifetime and randomness.
type CodeStoreConfig struct {
	TTL    time.Duration
	Digits int
	// Rand overrides the entropy source; nil uses crypto/rand.
	Rand io.Reader
}

// CodeStore keeps at most one live code per (email, purpose).
type CodeStore struct {
	redis  redis.UniversalClient
	ttl    time.Duration
	digits int
	rand   io.Reader
}

func NewCodeStore(redisClient redis.UniversalClient, cfg CodeStoreConfig) *CodeStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCodeTTL
	}
	if cfg.Digits == 0 {
		cfg.Digits = DefaultCodeDigits
	}
	return &CodeStore{
		redis:  redisClient,
		ttl:    cfg.TTL,
		digits: cfg.Digits,
		rand:   cfg.Rand,
	}
}

// TTL returns the lifetime applied to issued codes.
func (s *CodeStore) TTL() time.Duration {
	return s.ttl
}

// CodeKey returns the redis key holding the live code for email and purpose.
func CodeKey(email string, purpose Purpose) string {
	return "otp:" + strings.ToLower(strings.TrimSpace(email)) + ":" + string(purpose)
}

// Issue generates a fresh code and stores it, replacing any previous code
// for the same key.
func (s *CodeStore) Issue(ctx context.Context, email string, purpose Purpose) (string, error) {
	if err := checkTarget(email, purpose); err != nil {
		return "", err
	}

	code, err := internal.NewNumericCode(s.rand, s.digits)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeGeneration, err)
	}

	if err := s.redis.Set(ctx, CodeKey(email, purpose), code, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCodeStoreFailure, err)
	}
	return code, nil
}

// Fetch returns the live code, or found=false when none exists or it expired.
func (s *CodeStore) Fetch(ctx context.Context, email string, purpose Purpose) (string, bool, error) {
	if err := checkTarget(email, purpose); err != nil {
		return "", false, err
	}

	code, err := s.redis.Get(ctx, CodeKey(email, purpose)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrCodeStoreFailure, err)
	}
	return code, true, nil
}

// consumeCodeLua deletes the code only when the submission matches it, so a
// code can verify at most once no matter how many requests race.
// KEYS[1] = code key
// ARGV[1] = submitted code
//
// Returns 1 when consumed, 0 when the code is absent or differs. A mismatch
// leaves the code in place. The comparison walks every byte of an equal-length
// submission.
var consumeCodeLua = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
  return 0
end

local submitted = ARGV[1]
if string.len(stored) ~= string.len(submitted) then
  return 0
end

local diff = 0
for i = 1, string.len(stored) do
  if string.byte(stored, i) ~= string.byte(submitted, i) then
    diff = diff + 1
  end
end
if diff ~= 0 then
  return 0
end

redis.call('DEL', KEYS[1])
return 1
`)

// Consume deletes the live code when submitted matches it and reports
// whether it did. Absent, expired and already-consumed codes all report
// false.
func (s *CodeStore) Consume(ctx context.Context, email string, purpose Purpose, submitted string) (bool, error) {
	if err := checkTarget(email, purpose); err != nil {
		return false, err
	}
	if submitted == "" {
		return false, nil
	}

	n, err := consumeCodeLua.Run(ctx, s.redis, []string{CodeKey(email, purpose)}, submitted).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCodeStoreFailure, err)
	}
	return n == 1, nil
}

// Invalidate deletes the live code. Deleting an absent code is not an error.
func (s *CodeStore) Invalidate(ctx context.Context, email string, purpose Purpose) error {
	if err := checkTarget(email, purpose); err != nil {
		return err
	}

	if err := s.redis.Del(ctx, CodeKey(email, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeStoreFailure, err)
	}
	return nil
}

func checkTarget(email string, purpose Purpose) error {
	if !purpose.Valid() {
		return ErrUnknownPurpose
	}
	if strings.TrimSpace(email) == "" {
		return ErrMissingCodeTarget
	}
	return nil
}
