package accessgate

import (
	"context"
	"time"
)

// HealthStatus is an on-demand dependency check.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
	RedisAvailable bool
	RedisLatency   time.Duration
	PoolsHealthy   bool
	Breakers       map[string]string
}

// Healthy reports whether every dependency answered and every pool has
// headroom.
func (h HealthStatus) Healthy() bool {
	return h.StoreAvailable && h.RedisAvailable && h.PoolsHealthy
}

// Health pings the account store and redis. The store check goes through the
// database guard; the redis ping does not, so an open cache breaker does not
// hide a recovered server.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{Breakers: map[string]string{}}
	}

	var h HealthStatus

	start := time.Now()
	_, err := e.gateway.count(ctx)
	h.StoreAvailable = err == nil
	h.StoreLatency = time.Since(start)

	start = time.Now()
	err = e.redis.Ping(ctx).Err()
	h.RedisAvailable = err == nil
	h.RedisLatency = time.Since(start)

	h.PoolsHealthy = e.pools.Healthy()
	h.Breakers = e.BreakerStates()
	return h
}
