// Package health watches Engine dependencies and worker pools.
//
// A Monitor logs one line per pool on every round, the same view the
// Engine exposes through PoolStats, and mirrors the overall health into a
// gRPC health server so load balancers can drain an instance whose store,
// cache or pools are in trouble.
package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/rs/zerolog"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Source is satisfied by *accessgate.Engine.
type Source interface {
	Health(ctx context.Context) accessgate.HealthStatus
	PoolStats() []workers.Stats
}

type Config struct {
	// Interval between rounds. Zero means five minutes.
	Interval time.Duration
	// CheckTimeout bounds one Health call. Zero means five seconds.
	CheckTimeout time.Duration
	// Service is the gRPC health service name. "" is the server-wide status.
	Service string
}

type Monitor struct {
	src    Source
	server *grpchealth.Server
	cfg    Config
	log    zerolog.Logger

	serving atomic.Bool
}

// NewMonitor returns a Monitor. server may be nil when no gRPC health
// endpoint is exposed.
func NewMonitor(src Source, server *grpchealth.Server, cfg Config, log zerolog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 5 * time.Second
	}
	return &Monitor{
		src:    src,
		server: server,
		cfg:    cfg,
		log:    log.With().Str("component", "health").Logger(),
	}
}

// Run checks immediately and then once per interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Check(ctx)

	t := time.NewTicker(m.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			m.setServing(false)
			return nil
		case <-t.C:
			m.Check(ctx)
		}
	}
}

// Check runs one round and returns the observed status.
func (m *Monitor) Check(ctx context.Context) accessgate.HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
	defer cancel()

	st := m.src.Health(checkCtx)
	for _, s := range m.src.PoolStats() {
		ev := m.log.Info()
		if s.Max > 0 && s.Active >= int64(s.Max) {
			ev = m.log.Warn()
		}
		ev.Str("pool", string(s.Class)).
			Int64("active", s.Active).
			Int("capacity", s.Capacity).
			Int("core", s.Core).
			Int("max", s.Max).
			Int("backlog", s.Backlog).
			Uint64("completed", s.Completed).
			Uint64("rejected", s.Rejected).
			Uint64("caller_runs", s.CallerRuns).
			Msg("pool stats")
	}

	ev := m.log.Info()
	if !st.Healthy() {
		ev = m.log.Warn()
	}
	ev.Bool("store", st.StoreAvailable).
		Dur("store_latency", st.StoreLatency).
		Bool("redis", st.RedisAvailable).
		Dur("redis_latency", st.RedisLatency).
		Bool("pools", st.PoolsHealthy).
		Interface("breakers", st.Breakers).
		Msg("health check")

	m.setServing(st.Healthy())
	return st
}

// Serving reports the status set by the last round.
func (m *Monitor) Serving() bool {
	return m.serving.Load()
}

func (m *Monitor) setServing(ok bool) {
	if prev := m.serving.Swap(ok); prev != ok {
		m.log.Info().Bool("serving", ok).Msg("serving status changed")
	}
	if m.server == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	m.server.SetServingStatus(m.cfg.Service, status)
}
