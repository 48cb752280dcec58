// Package metrics exposes relay counters and per-sensor gauges to
// Prometheus.
//
// A *Metrics is attached as an observer to the serial acquirer, the
// publication loop and the sensor registry; the API serves Handler on the
// configured metrics path.
package metrics
