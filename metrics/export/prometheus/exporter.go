package prometheus

import (
	"net/http"

	"github.com/MrEthical07/accessgate"
	"github.com/MrEthical07/accessgate/internal/workers"
	"github.com/MrEthical07/accessgate/metrics/export/internaldefs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsSource interface {
	MetricsSnapshot() accessgate.MetricsSnapshot
	AuditDropped() uint64
	BreakerStates() map[string]string
	PoolStats() []workers.Stats
}

// Collector is a prometheus.Collector over an Engine. Each scrape reads one
// snapshot; nothing is cached between scrapes.
type Collector struct {
	source metricsSource

	counters     []*prometheus.Desc
	latency      *prometheus.Desc
	auditDropped *prometheus.Desc
	breakerOpen  *prometheus.Desc
	poolActive   *prometheus.Desc
	poolBacklog  *prometheus.Desc
	poolRejected *prometheus.Desc
}

func NewCollector(engine *accessgate.Engine) *Collector {
	return NewCollectorFromSource(engine)
}

func NewCollectorFromSource(source metricsSource) *Collector {
	c := &Collector{
		source:   source,
		counters: make([]*prometheus.Desc, len(internaldefs.CounterDefs)),
	}
	for i, def := range internaldefs.CounterDefs {
		c.counters[i] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	hist := internaldefs.HistogramDefs[0]
	c.latency = prometheus.NewDesc(hist.Name, hist.Help, nil, nil)
	c.auditDropped = prometheus.NewDesc(internaldefs.AuditDroppedName,
		"Audit events dropped because the dispatcher buffer was full.", nil, nil)
	c.breakerOpen = prometheus.NewDesc("accessgate_breaker_open",
		"1 when the circuit breaker of a resilience policy is not closed.", []string{"policy", "state"}, nil)
	c.poolActive = prometheus.NewDesc("accessgate_pool_active_workers",
		"Workers currently running tasks.", []string{"class"}, nil)
	c.poolBacklog = prometheus.NewDesc("accessgate_pool_backlog",
		"Tasks waiting for a worker.", []string{"class"}, nil)
	c.poolRejected = prometheus.NewDesc("accessgate_pool_rejected_total",
		"Tasks refused because the pool and its backlog were full.", []string{"class"}, nil)
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d
	}
	ch <- c.latency
	ch <- c.auditDropped
	ch <- c.breakerOpen
	ch <- c.poolActive
	ch <- c.poolBacklog
	ch <- c.poolRejected
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.source == nil {
		return
	}

	snapshot := c.source.MetricsSnapshot()
	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(c.counters[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}

	if raw, ok := snapshot.Histograms[internaldefs.HistogramDefs[0].ID]; ok {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		// The snapshot keeps no sum.
		ch <- prometheus.MustNewConstHistogram(c.latency, cumulative[len(cumulative)-1], 0, buckets)
	}

	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))

	for policy, state := range c.source.BreakerStates() {
		open := 0.0
		if state != "closed" {
			open = 1
		}
		ch <- prometheus.MustNewConstMetric(c.breakerOpen, prometheus.GaugeValue, open, policy, state)
	}

	for _, s := range c.source.PoolStats() {
		class := string(s.Class)
		ch <- prometheus.MustNewConstMetric(c.poolActive, prometheus.GaugeValue, float64(s.Active), class)
		ch <- prometheus.MustNewConstMetric(c.poolBacklog, prometheus.GaugeValue, float64(s.Backlog), class)
		ch <- prometheus.MustNewConstMetric(c.poolRejected, prometheus.CounterValue, float64(s.Rejected), class)
	}
}

// Handler serves the collector from a private registry, together with the
// Go runtime and process collectors.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		c,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
