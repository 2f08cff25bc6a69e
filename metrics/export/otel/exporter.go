package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/MrEthical07/accessgate/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() accessgate.MetricsSnapshot
	AuditDropped() uint64
	BreakerStates() map[string]string
	PoolStats() []workers.Stats
}

// Exporter publishes the same series as the prometheus Collector through
// observable instruments. One callback reads one snapshot per collection.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	// counters is indexed like internaldefs.CounterDefs.
	counters       []metric.Int64ObservableCounter
	latencyBuckets metric.Int64ObservableGauge
	latencyCount   metric.Int64ObservableGauge
	auditDropped   metric.Int64ObservableCounter
	breakerOpen    metric.Int64ObservableGauge
	poolActive     metric.Int64ObservableGauge
	poolBacklog    metric.Int64ObservableGauge
	poolRejected   metric.Int64ObservableCounter
}

func NewExporter(meter metric.Meter, engine *accessgate.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	var (
		errs        []error
		observables []metric.Observable
	)
	counter := func(name, help string) metric.Int64ObservableCounter {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			errs = append(errs, fmt.Errorf("counter %s: %w", name, err))
			return nil
		}
		observables = append(observables, ins)
		return ins
	}
	gauge := func(name, help string) metric.Int64ObservableGauge {
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			errs = append(errs, fmt.Errorf("gauge %s: %w", name, err))
			return nil
		}
		observables = append(observables, ins)
		return ins
	}

	e := &Exporter{source: source}
	for _, def := range internaldefs.CounterDefs {
		e.counters = append(e.counters, counter(def.Name, def.Help))
	}
	latency := internaldefs.HistogramDefs[0]
	e.latencyBuckets = gauge(latency.Name+"_bucket", "Cumulative login latency samples at or below le seconds.")
	e.latencyCount = gauge(latency.Name+"_count", "Login latency samples.")
	e.auditDropped = counter(internaldefs.AuditDroppedName, "Audit events dropped because the dispatcher buffer was full.")
	e.breakerOpen = gauge("accessgate_breaker_open", "1 when the circuit breaker of a resilience policy is not closed.")
	e.poolActive = gauge("accessgate_pool_active_workers", "Workers currently running tasks.")
	e.poolBacklog = gauge("accessgate_pool_backlog", "Tasks waiting for a worker.")
	e.poolRejected = counter("accessgate_pool_rejected_total", "Tasks refused because the pool and its backlog were full.")
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for i, def := range internaldefs.CounterDefs {
		o.ObserveInt64(e.counters[i], int64(snapshot.Counters[def.ID]))
	}

	// The histogram is only present when latency recording is enabled.
	if raw, ok := snapshot.Histograms[internaldefs.HistogramDefs[0].ID]; ok {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, le := range internaldefs.BucketLabels {
			o.ObserveInt64(e.latencyBuckets, int64(cumulative[i]), metric.WithAttributes(attribute.String("le", le)))
		}
		o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	for policy, state := range e.source.BreakerStates() {
		var open int64
		if state != "closed" {
			open = 1
		}
		o.ObserveInt64(e.breakerOpen, open, metric.WithAttributes(
			attribute.String("policy", policy),
			attribute.String("state", state),
		))
	}

	for _, s := range e.source.PoolStats() {
		class := metric.WithAttributes(attribute.String("class", string(s.Class)))
		o.ObserveInt64(e.poolActive, s.Active, class)
		o.ObserveInt64(e.poolBacklog, int64(s.Backlog), class)
		o.ObserveInt64(e.poolRejected, int64(s.Rejected), class)
	}
	return nil
}

// Close unregisters the callback. Instruments stay in the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
