package accessgate

import (
	"context"
	"time"

	internalaudit "github.com/MrEthical07/accessgate/internal/audit"
	"github.com/MrEthical07/accessgate/internal/ids"
	"github.com/MrEthical07/accessgate/internal/limiters"
	"github.com/MrEthical07/accessgate/internal/resilience"
	"github.com/MrEthical07/accessgate/internal/stores"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/MrEthical07/accessgate/jwt"
	"github.com/MrEthical07/accessgate/password"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Engine runs login, registration and email verification. It is safe for
// concurrent use. Every operation returns a Result and never panics.
type Engine struct {
	config Config
	log    zerolog.Logger
	now    func() time.Time
	redis  redis.UniversalClient

	pools     *workers.Manager
	ownsPools bool

	guards     *resilience.Registry
	cacheGuard *resilience.Guard
	mailGuard  *resilience.Guard
	gateway    *gateway

	attempts *limiters.AttemptCounter
	throttle *limiters.VerificationThrottle
	codes    *stores.CodeStore
	mailer   Mailer

	hasher *password.Hasher
	tokens *jwt.Manager
	ids    *ids.Generator

	audit   *internalaudit.Dispatcher
	metrics *Metrics
}

// Close drains the audit buffer and, when the Engine built its own pools,
// shuts them down.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.ownsPools && e.pools != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = e.pools.Shutdown(ctx)
		cancel()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full or Close ran out of drain time.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Pools exposes the worker pool manager for monitoring.
func (e *Engine) Pools() *workers.Manager {
	return e.pools
}

// BreakerStates reports the circuit state of every resilience policy.
func (e *Engine) BreakerStates() map[string]string {
	if e == nil || e.guards == nil {
		return map[string]string{}
	}
	return e.guards.States()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// flowMetric adapts metricInc to the int ids used inside flows.
func (e *Engine) flowMetric(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) acquire(class workers.Class) (*workers.Executor, error) {
	return e.pools.Acquire(class)
}

func (e *Engine) ready() bool {
	return e != nil && e.pools != nil && e.gateway != nil
}

// PoolStats snapshots every worker pool.
func (e *Engine) PoolStats() []workers.Stats {
	if e == nil || e.pools == nil {
		return nil
	}
	return e.pools.Stats()
}
