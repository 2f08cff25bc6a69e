// Package otel exposes Engine metrics as OpenTelemetry observable
// instruments. Names and attributes match the prometheus exporter: login
// latency buckets carry an "le" attribute, breakers carry "policy" and
// "state", and pools carry "class". The caller owns the MeterProvider.
package otel
