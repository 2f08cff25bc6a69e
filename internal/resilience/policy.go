package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Policy names for the three external dependency classes. Each one owns an
// independent breaker.
const (
	PolicyDatabase = "database"
	PolicyCache    = "cache"
	PolicyMail     = "mail"
)

// Policy configures retry and circuit-breaking for one dependency class.
type Policy struct {
	Name string

	// Retry
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration

	// Circuit breaker
	FailureRatio     float64
	MinRequests      uint32
	Window           time.Duration
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// DefaultPolicies returns the stock database, cache and mail policies.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyDatabase: {
			Name:             PolicyDatabase,
			MaxAttempts:      3,
			InitialBackoff:   50 * time.Millisecond,
			MaxBackoff:       500 * time.Millisecond,
			AttemptTimeout:   2 * time.Second,
			FailureRatio:     0.5,
			MinRequests:      10,
			Window:           30 * time.Second,
			OpenTimeout:      15 * time.Second,
			HalfOpenRequests: 3,
		},
		PolicyCache: {
			Name:             PolicyCache,
			MaxAttempts:      2,
			InitialBackoff:   20 * time.Millisecond,
			MaxBackoff:       100 * time.Millisecond,
			AttemptTimeout:   300 * time.Millisecond,
			FailureRatio:     0.5,
			MinRequests:      20,
			Window:           10 * time.Second,
			OpenTimeout:      5 * time.Second,
			HalfOpenRequests: 5,
		},
		PolicyMail: {
			Name:             PolicyMail,
			MaxAttempts:      3,
			InitialBackoff:   500 * time.Millisecond,
			MaxBackoff:       5 * time.Second,
			AttemptTimeout:   10 * time.Second,
			FailureRatio:     0.6,
			MinRequests:      5,
			Window:           time.Minute,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
		},
	}
}

// Validate reports the first invalid field.
func (p Policy) Validate() error {
	if p.Name == "" {
		return errors.New("resilience policy name is required")
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("policy %s: MaxAttempts must be > 0", p.Name)
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < p.InitialBackoff {
		return fmt.Errorf("policy %s: backoff bounds are invalid", p.Name)
	}
	if p.AttemptTimeout < 0 {
		return fmt.Errorf("policy %s: AttemptTimeout must be >= 0", p.Name)
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		return fmt.Errorf("policy %s: FailureRatio must be in (0, 1]", p.Name)
	}
	if p.MinRequests == 0 {
		return fmt.Errorf("policy %s: MinRequests must be > 0", p.Name)
	}
	if p.OpenTimeout <= 0 {
		return fmt.Errorf("policy %s: OpenTimeout must be > 0", p.Name)
	}
	if p.HalfOpenRequests == 0 {
		return fmt.Errorf("policy %s: HalfOpenRequests must be > 0", p.Name)
	}
	return nil
}
