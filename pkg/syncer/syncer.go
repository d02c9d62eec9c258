// Package syncer pushes locally stored stubs to WireMock instances.
//
// For each stub and target instance it decides between create and update
// from the identifier stored in the stub's mapping, performs the remote call,
// and writes a newly assigned identifier back to the store before reporting
// success. Work on one stub is serialized; different stubs and different
// instances proceed in parallel.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ykagano/wiremock-jp/pkg/logging"
	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/wiremock"
)

// DefaultWorkers bounds the per-batch parallelism.
const DefaultWorkers = 4

// RemoteClient is the part of the WireMock admin API the orchestrator uses.
type RemoteClient interface {
	CreateMapping(ctx context.Context, payload json.RawMessage) (string, error)
	UpdateMapping(ctx context.Context, id string, payload json.RawMessage) error
	ListMappings(ctx context.Context) (*wiremock.MappingsResponse, error)
	DeleteMapping(ctx context.Context, id string) error
}

// ClientFactory builds a client for one instance. It is called per
// operation; clients are never shared across calls.
type ClientFactory func(inst *stub.Instance) RemoteClient

// Observer is called once per finished stub sync with "created", "updated"
// or "failed". kind is empty unless the sync failed.
type Observer func(outcome string, kind Kind)

// Orchestrator synchronizes stubs to instances.
type Orchestrator struct {
	projects  store.ProjectStore
	instances store.InstanceRegistry
	stubs     store.StubRepository

	newClient ClientFactory
	workers   int
	timeout   time.Duration
	log       *slog.Logger
	observe   Observer
	locks     *keyedMutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers sets how many stubs of one batch are synced at once. One
// gives strictly sequential batches. Values below one are ignored.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTimeout sets the deadline of each remote data call made by the
// default client factory and of each reconciliation write.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClientFactory replaces how instance clients are built.
func WithClientFactory(f ClientFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.newClient = f
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithObserver registers a callback for per-stub outcomes.
func WithObserver(f Observer) Option {
	return func(o *Orchestrator) {
		o.observe = f
	}
}

// New creates an Orchestrator over s.
func New(s store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		projects:  s.Projects(),
		instances: s.Instances(),
		stubs:     s.Stubs(),
		workers:   DefaultWorkers,
		timeout:   wiremock.DefaultTimeout,
		log:       logging.Nop(),
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.newClient == nil {
		o.newClient = func(inst *stub.Instance) RemoteClient {
			return wiremock.New(inst.URL,
				wiremock.WithTimeout(o.timeout),
				wiremock.WithLogger(o.log))
		}
	}
	return o
}

// SyncOne pushes one stub to one instance. A stub without a stored remote
// identifier is created and the returned identifier is persisted before
// SyncOne returns; otherwise the mapping is updated in place.
//
// Errors are *SyncError.
func (o *Orchestrator) SyncOne(ctx context.Context, stubID, instanceID string) error {
	st, inst, err := o.resolve(ctx, stubID, instanceID)
	if err != nil {
		return err
	}
	_, err = o.syncStub(ctx, o.newClient(inst), inst, st.ID)
	return err
}

// SyncAll pushes every active stub of a project to one instance. Item
// failures are collected in the Result; only local lookup failures of the
// project or instance are returned as an error, before any remote call.
//
// If ctx is canceled, SyncAll stops starting new stubs and returns at once
// with Canceled set. Stubs already in flight still finish, including their
// reconciliation writes.
func (o *Orchestrator) SyncAll(ctx context.Context, projectID, instanceID string) (*Result, error) {
	if _, err := o.projects.Get(ctx, projectID); err != nil {
		return nil, &SyncError{Kind: KindOf(err), InstanceID: instanceID, Err: err}
	}
	inst, err := o.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, &SyncError{Kind: KindOf(err), InstanceID: instanceID, Err: err}
	}
	if inst.ProjectID != projectID {
		return nil, &SyncError{Kind: KindNotFound, InstanceID: instanceID, Err: errNotInProject(instanceID, projectID)}
	}

	stubs, err := o.stubs.ListActive(ctx, projectID)
	if err != nil {
		return nil, &SyncError{Kind: KindOf(err), InstanceID: instanceID, Err: fmt.Errorf("list active stubs: %w", err)}
	}

	return o.syncBatch(ctx, o.newClient(inst), inst, stubs), nil
}

// SyncProject runs SyncAll against every active instance of the project in
// parallel. Results follow the instance listing order.
func (o *Orchestrator) SyncProject(ctx context.Context, projectID string) ([]InstanceResult, error) {
	if _, err := o.projects.Get(ctx, projectID); err != nil {
		return nil, &SyncError{Kind: KindOf(err), Err: err}
	}
	instances, err := o.instances.ListActive(ctx, projectID)
	if err != nil {
		return nil, &SyncError{Kind: KindOf(err), Err: fmt.Errorf("list active instances: %w", err)}
	}
	stubs, err := o.stubs.ListActive(ctx, projectID)
	if err != nil {
		return nil, &SyncError{Kind: KindOf(err), Err: fmt.Errorf("list active stubs: %w", err)}
	}

	results := make([]InstanceResult, len(instances))
	var g errgroup.Group
	for i, inst := range instances {
		g.Go(func() error {
			results[i] = InstanceResult{
				Instance: inst,
				Result:   o.syncBatch(ctx, o.newClient(inst), inst, stubs),
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// Recover resolves a partial reconciliation. It looks on the instance for
// the mapping created for this stub and stores its identifier locally. A
// stub that already carries an identifier is returned unchanged. If the
// instance has no such mapping the error is KindNotFound and the stub can be
// synced again safely.
func (o *Orchestrator) Recover(ctx context.Context, stubID, instanceID string) (string, error) {
	st, inst, err := o.resolve(ctx, stubID, instanceID)
	if err != nil {
		return "", err
	}

	unlock := o.locks.Lock(st.ID)
	defer unlock()

	work := context.WithoutCancel(ctx)
	fail := func(kind Kind, remoteID string, err error) (string, error) {
		return "", &SyncError{Kind: kind, StubID: stubID, InstanceID: instanceID, RemoteID: remoteID, Err: err}
	}

	st, err = o.stubs.Get(work, st.ID)
	if err != nil {
		return fail(KindOf(err), "", err)
	}
	if ref, ok := st.Ref().(stub.Synced); ok {
		return ref.RemoteID, nil
	}

	listing, err := o.newClient(inst).ListMappings(work)
	if err != nil {
		return fail(KindOf(err), "", err)
	}

	var matches []wiremock.Mapping
	for _, m := range listing.Mappings {
		if stub.TaggedStubID(m.Metadata) == st.ID {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return fail(KindNotFound, "", fmt.Errorf("no mapping on the instance is tagged with this stub: %w", store.ErrNotFound))
	}
	remoteID := matches[0].ID
	if remoteID == "" {
		remoteID = matches[0].UUID
	}
	if len(matches) > 1 {
		o.log.Warn("several remote mappings tagged with one stub, keeping the first",
			"stub", st.ID, "instance", inst.ID, "count", len(matches), "remoteId", remoteID)
	}

	if err := o.reconcile(work, st, remoteID); err != nil {
		return fail(KindPartialReconciliation, remoteID, err)
	}
	o.log.Info("stub recovered", "stub", st.ID, "instance", inst.ID, "remoteId", remoteID)
	return remoteID, nil
}

// Unpublish removes the stub's mapping from one instance and returns its
// remote identifier. A stub that was never synced returns "" and makes no
// remote call; a mapping the instance no longer has is not an error. The
// stored stub is left unchanged.
func (o *Orchestrator) Unpublish(ctx context.Context, stubID, instanceID string) (string, error) {
	st, inst, err := o.resolve(ctx, stubID, instanceID)
	if err != nil {
		return "", err
	}

	unlock := o.locks.Lock(st.ID)
	defer unlock()

	work := context.WithoutCancel(ctx)
	st, err = o.stubs.Get(work, st.ID)
	if err != nil {
		return "", &SyncError{Kind: KindOf(err), StubID: stubID, InstanceID: instanceID, Err: err}
	}
	ref, ok := st.Ref().(stub.Synced)
	if !ok {
		return "", nil
	}

	err = o.newClient(inst).DeleteMapping(work, ref.RemoteID)
	var rej *wiremock.RejectedError
	if errors.As(err, &rej) && rej.StatusCode == http.StatusNotFound {
		o.log.Debug("remote mapping already gone", "stub", st.ID, "instance", inst.ID, "remoteId", ref.RemoteID)
		err = nil
	}
	if err != nil {
		return "", &SyncError{Kind: KindOf(err), StubID: stubID, InstanceID: instanceID, RemoteID: ref.RemoteID, Err: err}
	}
	o.log.Info("mapping removed", "stub", st.ID, "instance", inst.ID, "remoteId", ref.RemoteID)
	return ref.RemoteID, nil
}

// resolve loads the stub and instance and checks they share a project.
func (o *Orchestrator) resolve(ctx context.Context, stubID, instanceID string) (*stub.Stub, *stub.Instance, error) {
	fail := func(err error) (*stub.Stub, *stub.Instance, error) {
		return nil, nil, &SyncError{Kind: KindOf(err), StubID: stubID, InstanceID: instanceID, Err: err}
	}
	st, err := o.stubs.Get(ctx, stubID)
	if err != nil {
		return fail(err)
	}
	inst, err := o.instances.Get(ctx, instanceID)
	if err != nil {
		return fail(err)
	}
	if inst.ProjectID != st.ProjectID {
		return fail(errNotInProject(instanceID, st.ProjectID))
	}
	return st, inst, nil
}

// syncBatch syncs stubs through a bounded worker pool. Worker functions
// never return errors, so one failure never stops the others.
func (o *Orchestrator) syncBatch(ctx context.Context, client RemoteClient, inst *stub.Instance, stubs []*stub.Stub) *Result {
	ids := make([]string, len(stubs))
	for i, st := range stubs {
		ids[i] = st.ID
	}

	var mu sync.Mutex
	items := make([]item, len(stubs))

	done := make(chan struct{})
	go func() {
		defer close(done)
		var g errgroup.Group
		g.SetLimit(o.workers)
		for i, id := range ids {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				out, err := o.syncStub(ctx, client, inst, id)
				mu.Lock()
				items[i] = item{done: true, outcome: out, err: err}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	res := &Result{ProjectID: inst.ProjectID, InstanceID: inst.ID, Total: len(stubs)}
	mu.Lock()
	aggregate(res, ids, items)
	mu.Unlock()

	o.log.Info("sync batch finished",
		"project", inst.ProjectID, "instance", inst.ID,
		"total", res.Total, "succeeded", res.Succeeded, "failed", res.Failed,
		"canceled", res.Canceled)
	return res
}

// syncStub runs the create-or-update path for one stub under its lock. The
// stub is re-read under the lock so a concurrent reconciliation is seen.
// Remote calls and the reconciliation write ignore ctx cancellation and run
// under their own deadlines.
func (o *Orchestrator) syncStub(ctx context.Context, client RemoteClient, inst *stub.Instance, stubID string) (out outcome, err error) {
	unlock := o.locks.Lock(stubID)
	defer unlock()
	if o.observe != nil {
		defer func() {
			if err != nil {
				o.observe("failed", KindOf(err))
				return
			}
			o.observe(out.String(), "")
		}()
	}

	work := context.WithoutCancel(ctx)
	fail := func(kind Kind, remoteID string, err error) (outcome, error) {
		o.log.Warn("stub sync failed", "stub", stubID, "instance", inst.ID, "kind", kind, "error", err)
		return 0, &SyncError{Kind: kind, StubID: stubID, InstanceID: inst.ID, RemoteID: remoteID, Err: err}
	}

	st, err := o.stubs.Get(work, stubID)
	if err != nil {
		return fail(KindOf(err), "", err)
	}

	switch ref := st.Ref().(type) {
	case stub.Synced:
		if err := client.UpdateMapping(work, ref.RemoteID, st.Mapping); err != nil {
			return fail(KindOf(err), ref.RemoteID, err)
		}
		o.log.Debug("mapping updated", "stub", st.ID, "instance", inst.ID, "remoteId", ref.RemoteID)
		return outcomeUpdated, nil

	default:
		payload, err := stub.TagStubID(st.Mapping, st.ID)
		if err != nil {
			return fail(KindRejected, "", err)
		}
		remoteID, err := client.CreateMapping(work, payload)
		if err != nil {
			return fail(KindOf(err), "", err)
		}
		if err := o.reconcile(work, st, remoteID); err != nil {
			return fail(KindPartialReconciliation, remoteID, err)
		}
		o.log.Debug("mapping created", "stub", st.ID, "instance", inst.ID, "remoteId", remoteID)
		return outcomeCreated, nil
	}
}

// reconcile stores remoteID in the stub's mapping together with the stub tag
// that was sent on create.
func (o *Orchestrator) reconcile(ctx context.Context, st *stub.Stub, remoteID string) error {
	tagged, err := stub.TagStubID(st.Mapping, st.ID)
	if err != nil {
		return err
	}
	payload, err := stub.WithRemoteID(tagged, remoteID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if _, err := o.stubs.UpdateMappingPayload(ctx, st.ID, payload); err != nil {
		return fmt.Errorf("store remote id: %w", err)
	}
	return nil
}
