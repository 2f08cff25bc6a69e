// Package prometheus exports Engine metrics through client_golang.
//
// [Collector] turns each scrape into const metrics read from one
// MetricsSnapshot: accessgate_*_total counters, the
// accessgate_login_latency_seconds histogram, breaker state and worker pool
// gauges. [Handler] serves it from a private registry, so nothing is
// registered globally.
package prometheus
