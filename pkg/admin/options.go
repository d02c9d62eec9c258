package admin

import (
	"log/slog"
	"time"

	"github.com/ykagano/wiremock-jp/pkg/health"
	"github.com/ykagano/wiremock-jp/pkg/metrics"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
)

// Option configures the API.
type Option func(*API)

// WithAddr sets the listen address used by Start.
func WithAddr(addr string) Option {
	return func(a *API) {
		if addr != "" {
			a.addr = addr
		}
	}
}

// WithOrchestrator sets the orchestrator used for sync routes.
func WithOrchestrator(o *syncer.Orchestrator) Option {
	return func(a *API) {
		a.syncer = o
	}
}

// WithMetrics sets the metric set served on /metrics. Pass the same set to
// a custom orchestrator through SyncObserver to count sync outcomes.
func WithMetrics(m *metrics.Set) Option {
	return func(a *API) {
		if m != nil {
			a.metrics = m
		}
	}
}

// WithProber sets the prober used for health routes.
func WithProber(p *health.Prober) Option {
	return func(a *API) {
		a.prober = p
	}
}

// WithClientFactory replaces how passthrough clients are built.
func WithClientFactory(f func(inst *stub.Instance) RemoteClient) Option {
	return func(a *API) {
		if f != nil {
			a.newClient = f
		}
	}
}

// WithRemoteTimeout sets the deadline of passthrough calls and of the
// default orchestrator's remote calls.
func WithRemoteTimeout(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithCORS enables CORS headers with the given configuration.
func WithCORS(config CORSConfig) Option {
	return func(a *API) {
		a.cors = &config
	}
}

// WithVersion sets the version reported by the health route.
func WithVersion(version string) Option {
	return func(a *API) {
		if version != "" {
			a.version = version
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}
