package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultAttemptWindow is how long a failure count survives after the first
// failure in a window.
const DefaultAttemptWindow = 24 * time.Hour

var (
	// ErrAttemptsUnavailable indicates the counter backend is unreachable.
	ErrAttemptsUnavailable = errors.New("failed-attempt counter unavailable")
)

// AttemptCounter tracks consecutive failed password checks per account.
// The count only moves up until Reset; the key expires Window after the
// first failure.
type AttemptCounter struct {
	redis  redis.UniversalClient
	window time.Duration
}

// NewAttemptCounter creates a counter. A non-positive window uses
// DefaultAttemptWindow.
func NewAttemptCounter(redisClient redis.UniversalClient, window time.Duration) *AttemptCounter {
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &AttemptCounter{redis: redisClient, window: window}
}

// Key returns the redis key holding the count for accountID.
func Key(accountID string) string {
	return "failed_attempts:" + accountID
}

// Increment atomically adds one failure and returns the new count.
func (c *AttemptCounter) Increment(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, nil
	}

	count, err := incrWithin(ctx, c.redis, Key(accountID), c.window)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return count, nil
}

// incrWithin runs INCR and EXPIRE NX in one MULTI/EXEC. The expiry is only
// set when the key has none, so the window starts at the first increment and
// a key can never be left without a TTL.
func incrWithin(ctx context.Context, rdb redis.UniversalClient, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Reset clears the count. Resetting an absent key is not an error.
func (c *AttemptCounter) Reset(ctx context.Context, accountID string) error {
	if accountID == "" {
		return nil
	}

	if err := c.redis.Del(ctx, Key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return nil
}

// Count returns the current count, zero when absent.
func (c *AttemptCounter) Count(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, nil
	}

	count, err := c.redis.Get(ctx, Key(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return count, nil
}
