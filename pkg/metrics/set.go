package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"
)

// Set is the metrics exposed by the admin server.
//
// Label conventions:
//   - method: uppercase HTTP method
//   - route: the matched route pattern, "unmatched" when no route matched
//   - outcome: created, updated or failed
//   - kind: the sync failure kind (remote_unavailable, remote_rejected, ...)
type Set struct {
	*Registry

	// AdminRequests counts admin API requests. Labels: method, route, status.
	AdminRequests *Counter
	// AdminRequestDuration tracks admin API latency in seconds. Labels: method, route.
	AdminRequestDuration *Histogram
	// SyncedStubs counts per-stub sync outcomes. Labels: outcome.
	SyncedStubs *Counter
	// SyncFailures counts failed stub syncs. Labels: kind.
	SyncFailures *Counter
	// InstanceUp reports the last probe of each instance, 1 when healthy. Labels: instance.
	InstanceUp *Gauge
	// UptimeSeconds is refreshed on every scrape.
	UptimeSeconds *Gauge
	// Goroutines is refreshed on every scrape.
	Goroutines *Gauge

	start time.Time
}

// NewSet registers the admin server metrics in a fresh registry.
func NewSet() *Set {
	r := NewRegistry()
	return &Set{
		Registry:             r,
		AdminRequests:        r.NewCounter("wmjp_admin_requests_total", "Total admin API requests", "method", "route", "status"),
		AdminRequestDuration: r.NewHistogram("wmjp_admin_request_duration_seconds", "Admin API request duration in seconds", DefaultBuckets, "method", "route"),
		SyncedStubs:          r.NewCounter("wmjp_synced_stubs_total", "Stub sync outcomes", "outcome"),
		SyncFailures:         r.NewCounter("wmjp_sync_failures_total", "Failed stub syncs by kind", "kind"),
		InstanceUp:           r.NewGauge("wmjp_instance_up", "Whether the last probe of an instance succeeded", "instance"),
		UptimeSeconds:        r.NewGauge("wmjp_uptime_seconds", "Seconds since the server started"),
		Goroutines:           r.NewGauge("go_goroutines", "Number of goroutines that currently exist"),
		start:                time.Now(),
	}
}

// ObserveRequest records one admin API request.
func (s *Set) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if vec, err := s.AdminRequests.WithLabels(method, route, strconv.Itoa(status)); err == nil {
		_ = vec.Inc()
	}
	if vec, err := s.AdminRequestDuration.WithLabels(method, route); err == nil {
		vec.Observe(d.Seconds())
	}
}

// ObserveStubSync records one finished stub sync. kind is empty unless
// outcome is "failed".
func (s *Set) ObserveStubSync(outcome, kind string) {
	if vec, err := s.SyncedStubs.WithLabels(outcome); err == nil {
		_ = vec.Inc()
	}
	if kind == "" {
		return
	}
	if vec, err := s.SyncFailures.WithLabels(kind); err == nil {
		_ = vec.Inc()
	}
}

// ObserveProbe records whether an instance answered its last probe.
func (s *Set) ObserveProbe(instanceID string, healthy bool) {
	vec, err := s.InstanceUp.WithLabels(instanceID)
	if err != nil {
		return
	}
	if healthy {
		vec.Set(1)
	} else {
		vec.Set(0)
	}
}

// Refresh updates the gauges sampled at scrape time.
func (s *Set) Refresh() {
	_ = s.UptimeSeconds.Set(time.Since(s.start).Seconds())
	_ = s.Goroutines.Set(float64(runtime.NumGoroutine()))
}

// Handler refreshes the scrape-time gauges and serves the registry.
func (s *Set) Handler() http.Handler {
	inner := s.Registry.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Refresh()
		inner.ServeHTTP(w, r)
	})
}
