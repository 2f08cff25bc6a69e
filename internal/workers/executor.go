package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

var (
	// ErrRejected is returned by Submit when a Reject pool is saturated.
	ErrRejected = errors.New("task rejected due to pool saturation")
	// ErrClosed is returned by Submit after shutdown started.
	ErrClosed = errors.New("worker pool closed")
)

// Stats is a point-in-time view of one pool.
type Stats struct {
	Class      Class
	Core       int
	Max        int
	Capacity   int
	Active     int64
	Backlog    int
	QueueLimit int
	Submitted  uint64
	Completed  uint64
	Rejected   uint64
	CallerRuns uint64
	Panics     uint64
}

// Executor runs tasks for one Class.
type Executor struct {
	class Class
	cfg   PoolConfig
	pool  *ants.Pool
	log   zerolog.Logger

	backlog chan func()
	resize  sync.Mutex
	closed  atomic.Bool
	stop    chan struct{}
	janitor sync.WaitGroup

	active     atomic.Int64
	submitted  atomic.Uint64
	completed  atomic.Uint64
	rejected   atomic.Uint64
	callerRuns atomic.Uint64
	panics     atomic.Uint64
}

type antsLogger struct {
	log zerolog.Logger
}

func (l antsLogger) Printf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func newExecutor(class Class, cfg PoolConfig, tick time.Duration, log zerolog.Logger) (*Executor, error) {
	e := &Executor{
		class:   class,
		cfg:     cfg,
		log:     log.With().Str("component", "workers").Str("pool", string(class)).Logger(),
		backlog: make(chan func(), cfg.Queue),
		stop:    make(chan struct{}),
	}

	opts := []ants.Option{
		ants.WithNonblocking(true),
		ants.WithLogger(antsLogger{log: e.log}),
		ants.WithPanicHandler(func(p any) {
			e.panics.Add(1)
			e.log.Error().Interface("panic", p).Msg("worker panic")
		}),
	}
	if cfg.IdleExpiry > 0 {
		opts = append(opts, ants.WithExpiryDuration(cfg.IdleExpiry))
	}

	pool, err := ants.NewPool(cfg.Core, opts...)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", class, err)
	}
	e.pool = pool

	e.janitor.Add(1)
	go e.maintain(tick)

	return e, nil
}

// Class returns the workload class this executor serves.
func (e *Executor) Class() Class { return e.class }

// Submit schedules task. It never blocks on a busy pool: the task runs on a
// core worker, waits in the bounded backlog, runs on a worker above core, or
// is handled by the overload policy, in that order.
func (e *Executor) Submit(task func()) error {
	if task == nil {
		return errors.New("nil task")
	}
	if e.closed.Load() {
		return ErrClosed
	}
	e.submitted.Add(1)

	err := e.pool.Submit(e.worker(task))
	if err == nil {
		return nil
	}
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrClosed
	}
	if !errors.Is(err, ants.ErrPoolOverload) {
		return err
	}

	select {
	case e.backlog <- task:
		e.kick()
		return nil
	default:
	}

	if e.grow() {
		if err := e.pool.Submit(e.worker(task)); err == nil {
			return nil
		}
	}

	if e.cfg.Overload == CallerRuns {
		e.callerRuns.Add(1)
		e.run(task)
		return nil
	}
	e.rejected.Add(1)
	return ErrRejected
}

// Stats snapshots counters and sizing.
func (e *Executor) Stats() Stats {
	return Stats{
		Class:      e.class,
		Core:       e.cfg.Core,
		Max:        e.cfg.Max,
		Capacity:   e.pool.Cap(),
		Active:     e.active.Load(),
		Backlog:    len(e.backlog),
		QueueLimit: e.cfg.Queue,
		Submitted:  e.submitted.Load(),
		Completed:  e.completed.Load(),
		Rejected:   e.rejected.Load(),
		CallerRuns: e.callerRuns.Load(),
		Panics:     e.panics.Load(),
	}
}

// Healthy reports whether the pool still has headroom below Max.
func (e *Executor) Healthy() bool {
	return !e.closed.Load() && e.active.Load() < int64(e.cfg.Max)
}

func (e *Executor) worker(task func()) func() {
	return func() {
		e.run(task)
		e.drain()
	}
}

func (e *Executor) run(task func()) {
	e.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error().Interface("panic", r).Msg("task panic")
		}
		e.active.Add(-1)
		e.completed.Add(1)
	}()
	task()
}

func (e *Executor) drain() {
	for {
		select {
		case task := <-e.backlog:
			e.run(task)
		default:
			return
		}
	}
}

// kick makes sure some worker will pick up the backlog.
func (e *Executor) kick() {
	_ = e.pool.Submit(e.drain)
}

func (e *Executor) grow() bool {
	e.resize.Lock()
	defer e.resize.Unlock()

	if e.pool.Cap() >= e.cfg.Max {
		return false
	}
	e.pool.Tune(e.cfg.Max)
	return true
}

func (e *Executor) shrink() {
	e.resize.Lock()
	defer e.resize.Unlock()

	if e.pool.Cap() > e.cfg.Core && len(e.backlog) == 0 && e.active.Load() <= int64(e.cfg.Core) {
		e.pool.Tune(e.cfg.Core)
	}
}

// maintain picks up backlog entries a finishing worker may have missed and
// returns the pool to its core size once load subsides.
func (e *Executor) maintain(tick time.Duration) {
	defer e.janitor.Done()

	t := time.NewTicker(tick)
	defer t.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			if len(e.backlog) > 0 {
				e.kick()
				continue
			}
			e.shrink()
		}
	}
}

func (e *Executor) shutdown(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.stop)
	e.janitor.Wait()

	// Queued tasks still run; new submissions already fail with ErrClosed.
	for {
		select {
		case task := <-e.backlog:
			if ctx.Err() != nil {
				e.pool.Release()
				return ctx.Err()
			}
			e.run(task)
			continue
		default:
		}
		break
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	err := e.pool.ReleaseTimeout(timeout)

	// Late arrivals from submissions that raced the close.
	e.drain()

	if err != nil {
		return fmt.Errorf("release %s pool: %w", e.class, err)
	}
	return nil
}
