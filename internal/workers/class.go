package workers

import (
	"fmt"
	"strings"
	"time"
)

// Class partitions work so that a saturated workload cannot starve another.
type Class string

const (
	ClassLogin          Class = "login"
	ClassRegistration   Class = "registration"
	ClassOTP            Class = "otp"
	ClassUserOperations Class = "user-operations"
	ClassMail           Class = "mail"
	ClassCache          Class = "cache"
	// ClassDefault configures pools for classes without an explicit entry.
	ClassDefault Class = "default"
)

// Overload selects what Submit does once a pool and its backlog are full.
type Overload uint8

const (
	// CallerRuns executes the task on the submitting goroutine.
	CallerRuns Overload = iota
	// Reject fails the submission with ErrRejected.
	Reject
)

func (o Overload) String() string {
	switch o {
	case CallerRuns:
		return "caller-runs"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// ParseOverload accepts "caller-runs" or "reject".
func ParseOverload(s string) (Overload, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "caller-runs", "callerruns", "caller_runs":
		return CallerRuns, nil
	case "reject":
		return Reject, nil
	default:
		return 0, fmt.Errorf("unknown overload policy %q", s)
	}
}

// PoolConfig sizes one pool. Core workers absorb steady load, the backlog
// holds up to Queue tasks, and only when the backlog is full does the pool
// grow to Max.
type PoolConfig struct {
	Core       int
	Max        int
	Queue      int
	Overload   Overload
	IdleExpiry time.Duration
}

// Validate reports the first invalid field.
func (c PoolConfig) Validate() error {
	if c.Core <= 0 {
		return fmt.Errorf("pool Core must be > 0")
	}
	if c.Max < c.Core {
		return fmt.Errorf("pool Max must be >= Core")
	}
	if c.Queue < 0 {
		return fmt.Errorf("pool Queue must be >= 0")
	}
	if c.Overload != CallerRuns && c.Overload != Reject {
		return fmt.Errorf("pool Overload is invalid")
	}
	if c.IdleExpiry < 0 {
		return fmt.Errorf("pool IdleExpiry must be >= 0")
	}
	return nil
}

// DefaultPools returns the stock sizing per class.
func DefaultPools() map[Class]PoolConfig {
	return map[Class]PoolConfig{
		ClassRegistration:   {Core: 2, Max: 5, Queue: 100, Overload: CallerRuns, IdleExpiry: time.Minute},
		ClassLogin:          {Core: 5, Max: 10, Queue: 300, Overload: CallerRuns, IdleExpiry: time.Minute},
		ClassOTP:            {Core: 3, Max: 8, Queue: 200, Overload: CallerRuns, IdleExpiry: time.Minute},
		ClassUserOperations: {Core: 3, Max: 6, Queue: 150, Overload: CallerRuns, IdleExpiry: time.Minute},
		ClassMail:           {Core: 3, Max: 5, Queue: 100, Overload: Reject, IdleExpiry: time.Minute},
		ClassCache:          {Core: 3, Max: 5, Queue: 50, Overload: Reject, IdleExpiry: time.Minute},
		ClassDefault:        {Core: 5, Max: 10, Queue: 100, Overload: CallerRuns, IdleExpiry: time.Minute},
	}
}
