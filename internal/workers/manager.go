package workers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var fallbackDefault = PoolConfig{Core: 5, Max: 10, Queue: 100, Overload: CallerRuns, IdleExpiry: time.Minute}

// Manager owns every pool. Pools are created on first Acquire and released
// together by Shutdown.
type Manager struct {
	log     zerolog.Logger
	configs map[Class]PoolConfig
	tick    time.Duration

	mu     sync.Mutex
	pools  map[Class]*Executor
	closed bool
}

// NewManager validates configs and returns an empty manager. Classes without
// an entry use the ClassDefault entry.
func NewManager(configs map[Class]PoolConfig, log zerolog.Logger) (*Manager, error) {
	cloned := make(map[Class]PoolConfig, len(configs)+1)
	for class, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", class, err)
		}
		cloned[class] = cfg
	}
	if _, ok := cloned[ClassDefault]; !ok {
		cloned[ClassDefault] = fallbackDefault
	}

	return &Manager{
		log:     log,
		configs: cloned,
		tick:    100 * time.Millisecond,
		pools:   make(map[Class]*Executor),
	}, nil
}

// Acquire returns the executor for class, creating it on first use.
func (m *Manager) Acquire(class Class) (*Executor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if ex, ok := m.pools[class]; ok {
		return ex, nil
	}

	cfg, ok := m.configs[class]
	if !ok {
		cfg = m.configs[ClassDefault]
	}
	ex, err := newExecutor(class, cfg, m.tick, m.log)
	if err != nil {
		return nil, err
	}
	m.pools[class] = ex

	m.log.Debug().
		Str("pool", string(class)).
		Int("core", cfg.Core).
		Int("max", cfg.Max).
		Int("queue", cfg.Queue).
		Str("overload", cfg.Overload.String()).
		Msg("worker pool created")

	return ex, nil
}

// Shutdown stops accepting work, runs what is queued, and releases every
// pool. It returns the first release error.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pools := make([]*Executor, 0, len(m.pools))
	for _, ex := range m.pools {
		pools = append(pools, ex)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, ex := range pools {
		g.Go(func() error {
			return ex.shutdown(gctx)
		})
	}
	err := g.Wait()

	m.log.Info().Int("pools", len(pools)).Err(err).Msg("worker pools shut down")
	return err
}

// Stats returns a snapshot of every created pool ordered by class.
func (m *Manager) Stats() []Stats {
	m.mu.Lock()
	out := make([]Stats, 0, len(m.pools))
	for _, ex := range m.pools {
		out = append(out, ex.Stats())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Class < out[j].Class })
	return out
}

// Healthy reports whether every created pool is open and below its maximum.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	for _, ex := range m.pools {
		if !ex.Healthy() {
			return false
		}
	}
	return true
}
