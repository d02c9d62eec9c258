// Package metrics implements the Prometheus text exposition format
// (text/plain; version=0.0.4) for the admin server.
//
// Supported metric types:
//   - Counter: monotonically increasing value (e.g., sync outcomes)
//   - Gauge: value that can go up or down (e.g., instance health)
//   - Histogram: distribution of values with configurable buckets (e.g., latencies)
//
// All metrics are safe for concurrent use.
//
// # Usage
//
//	set := metrics.NewSet()
//	set.ObserveRequest("GET", "GET /api/stubs", 200, 12*time.Millisecond)
//	set.ObserveStubSync("failed", "remote_unavailable")
//	http.Handle("/metrics", set.Handler())
//
// Custom metrics can also be created:
//
//	registry := metrics.NewRegistry()
//	counter := registry.NewCounter("my_counter", "Description of counter", "label1", "label2")
//	vec, _ := counter.WithLabels("value1", "value2")
//	vec.Inc()
package metrics
