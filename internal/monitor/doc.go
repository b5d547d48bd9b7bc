// Package monitor exposes Prometheus metrics for pipeline runs.
//
// Counters track run decisions and per-domain outcomes, histograms
// track safety scores and layer wall time. Metrics live in their own
// registry so tests stay isolated; the status server mounts Handler()
// at /metrics.
package monitor
