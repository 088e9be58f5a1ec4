// Package prometheus exposes authkit metrics as a Prometheus collector.
//
// [NewPrometheusExporter] accepts an [authkit.Engine] and returns a
// prometheus.Collector that turns each engine snapshot into const metrics.
// Counter names are prefixed authkit_*_total; the single histogram is
// authkit_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register the
//     collector or mount Handler.
//   - Mutate engine state.
package prometheus
