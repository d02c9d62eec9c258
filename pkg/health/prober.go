// Package health probes WireMock instances for reachability on demand.
//
// Probes are never cached or retried and the orchestrator does not consult
// them before syncing; a sync against an unreachable instance fails on its
// own with remote_unavailable.
package health

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/wiremock"
)

// Status is the probe outcome for one instance.
type Status struct {
	InstanceID string        `json:"instanceId"`
	Name       string        `json:"name"`
	URL        string        `json:"url"`
	Healthy    bool          `json:"isHealthy"`
	Latency    time.Duration `json:"latency"`
}

// Checker is what a probe needs from a WireMock client.
type Checker interface {
	ProbeHealth(ctx context.Context) bool
}

// Prober checks instances registered in a store.
type Prober struct {
	projects  store.ProjectStore
	instances store.InstanceRegistry
	timeout   time.Duration
	newClient func(url string) Checker
	log       *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithProbeTimeout sets the deadline of each probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithChecker replaces how a client is built for a base URL.
func WithChecker(f func(url string) Checker) Option {
	return func(p *Prober) {
		if f != nil {
			p.newClient = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(p *Prober) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a Prober reading instances from s.
func New(s store.Store, opts ...Option) *Prober {
	p := &Prober{
		projects:  s.Projects(),
		instances: s.Instances(),
		timeout:   wiremock.DefaultProbeTimeout,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.newClient == nil {
		p.newClient = func(url string) Checker {
			return wiremock.New(url,
				wiremock.WithProbeTimeout(p.timeout),
				wiremock.WithLogger(p.log))
		}
	}
	return p
}

// Probe checks one registered instance. The error is non-nil only when the
// instance cannot be looked up; an unreachable instance is (false, nil).
func (p *Prober) Probe(ctx context.Context, instanceID string) (bool, error) {
	inst, err := p.instances.Get(ctx, instanceID)
	if err != nil {
		return false, err
	}
	return p.ProbeURL(ctx, inst.URL), nil
}

// ProbeURL checks a base URL that need not be registered.
func (p *Prober) ProbeURL(ctx context.Context, url string) bool {
	return p.newClient(url).ProbeHealth(ctx)
}

// ProbeProject checks every active instance of a project in parallel.
// Statuses follow the registry's listing order.
func (p *Prober) ProbeProject(ctx context.Context, projectID string) ([]Status, error) {
	if _, err := p.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	insts, err := p.instances.ListActive(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out := make([]Status, len(insts))
	var g errgroup.Group
	for i, inst := range insts {
		g.Go(func() error {
			out[i] = p.status(ctx, inst)
			return nil
		})
	}
	_ = g.Wait()

	healthy := 0
	for _, s := range out {
		if s.Healthy {
			healthy++
		}
	}
	p.log.Debug("probed project", "project", projectID, "instances", len(out), "healthy", healthy)
	return out, nil
}

func (p *Prober) status(ctx context.Context, inst *stub.Instance) Status {
	start := time.Now()
	ok := p.ProbeURL(ctx, inst.URL)
	return Status{
		InstanceID: inst.ID,
		Name:       inst.Name,
		URL:        inst.URL,
		Healthy:    ok,
		Latency:    time.Since(start),
	}
}
