package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrVerificationRateLimited        = errors.New("verification rate limited")
	ErrVerificationLimiterUnavailable = errors.New("verification limiter unavailable")
)

// VerificationThrottleConfig bounds how often a verification code may be
// requested for one address and from one client IP.
type VerificationThrottleConfig struct {
	Enabled          bool
	EnableIPThrottle bool
	Window           time.Duration
	MaxRequests      int
}

type VerificationThrottle struct {
	redis  redis.UniversalClient
	config VerificationThrottleConfig
}

func NewVerificationThrottle(redisClient redis.UniversalClient, cfg VerificationThrottleConfig) *VerificationThrottle {
	return &VerificationThrottle{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRequest counts one code request against the email window and, when
// ip is known, the IP window.
func (l *VerificationThrottle) CheckRequest(ctx context.Context, email, ip string) error {
	if l == nil || !l.config.Enabled {
		return nil
	}
	if err := l.enforceFixedWindow(ctx, verificationRequestKey(email)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, verificationRequestIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *VerificationThrottle) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := incrWithin(ctx, l.redis, key, l.config.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationLimiterUnavailable, err)
	}

	if count > int64(l.config.MaxRequests) {
		return ErrVerificationRateLimited
	}

	return nil
}

func verificationRequestKey(email string) string {
	return "otp_req:" + strings.ToLower(strings.TrimSpace(email))
}

func verificationRequestIPKey(ip string) string {
	return "otp_req_ip:" + ip
}
