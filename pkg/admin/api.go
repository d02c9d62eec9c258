package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ykagano/wiremock-jp/pkg/health"
	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/metrics"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
	"github.com/ykagano/wiremock-jp/pkg/wiremock"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:3000"

// ShutdownTimeout bounds how long Stop waits for in-flight requests.
const ShutdownTimeout = 5 * time.Second

// RemoteClient is the part of the WireMock admin API passed through to
// callers.
type RemoteClient interface {
	ListMappings(ctx context.Context) (*wiremock.MappingsResponse, error)
	GetMapping(ctx context.Context, id string) (*wiremock.Mapping, error)
	ListRequests(ctx context.Context) (*wiremock.RequestsResponse, error)
	ListUnmatchedRequests(ctx context.Context) (*wiremock.RequestsResponse, error)
	ClearRequests(ctx context.Context) error
	Reset(ctx context.Context) error
}

// API serves the admin HTTP surface.
type API struct {
	store     store.Store
	syncer    *syncer.Orchestrator
	prober    *health.Prober
	newClient func(inst *stub.Instance) RemoteClient
	metrics   *metrics.Set

	addr      string
	timeout   time.Duration
	version   string
	cors      *CORSConfig
	log       *slog.Logger
	startTime time.Time

	httpServer *http.Server
	listener   net.Listener
}

// NewAPI creates an API over s. Unless overridden by options the
// orchestrator and prober are built from s with default settings.
func NewAPI(s store.Store, opts ...Option) *API {
	a := &API{
		store:     s,
		addr:      DefaultAddr,
		timeout:   wiremock.DefaultTimeout,
		version:   "dev",
		log:       logging.Nop(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.NewSet()
	}
	if a.syncer == nil {
		a.syncer = syncer.New(s,
			syncer.WithTimeout(a.timeout),
			syncer.WithLogger(a.log),
			syncer.WithObserver(SyncObserver(a.metrics)))
	}
	if a.prober == nil {
		a.prober = health.New(s, health.WithLogger(a.log))
	}
	if a.newClient == nil {
		a.newClient = func(inst *stub.Instance) RemoteClient {
			return wiremock.New(inst.URL, wiremock.WithTimeout(a.timeout), wiremock.WithLogger(a.log))
		}
	}
	return a
}

// Handler returns the routed handler wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerRoutes(mux)

	var h http.Handler = mux
	if a.cors != nil {
		h = NewCORSMiddleware(h, *a.cors)
	}
	h = NewMetricsMiddleware(h, a.metrics)
	return NewLoggingMiddleware(h, a.log)
}

// SyncObserver feeds per-stub sync outcomes into m.
func SyncObserver(m *metrics.Set) syncer.Observer {
	return func(outcome string, kind syncer.Kind) {
		m.ObserveStubSync(outcome, string(kind))
	}
}

// Start binds the listen address and serves in the background. Binding
// errors are returned directly.
func (a *API) Start() error {
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.addr, err)
	}
	a.listener = ln
	a.httpServer = &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.startTime = time.Now()

	a.log.Info("starting admin API", "addr", ln.Addr().String(), "version", a.version)
	go func() {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin API error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded, else the configured one.
func (a *API) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.addr
}

// Stop gracefully shuts the server down.
func (a *API) Stop() error {
	if a.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return a.httpServer.Shutdown(ctx)
}

// Uptime returns the API uptime in seconds.
func (a *API) Uptime() int {
	return int(time.Since(a.startTime).Seconds())
}
