// Package memory provides a thread-safe in-memory implementation of
// store.Store. It is also the engine behind the JSON file backend, which
// persists each committed change through a commit hook.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// DataVersion is the current version of the Data document.
const DataVersion = 1

// Data is a point-in-time copy of everything the store holds, each slice in
// creation order.
type Data struct {
	Version   int              `json:"version"`
	Projects  []*stub.Project  `json:"projects"`
	Instances []*stub.Instance `json:"instances"`
	Stubs     []*stub.Stub     `json:"stubs"`
}

// Store is a thread-safe in-memory implementation of store.Store.
type Store struct {
	mu     sync.RWMutex
	state  state
	commit func(Data) error
	now    func() time.Time
}

type state struct {
	projects  map[string]*stub.Project
	instances map[string]*stub.Instance
	stubs     map[string]*stub.Stub
	order     map[string]uint64
	seq       uint64
}

// Option configures a Store.
type Option func(*Store)

// WithData seeds the store. Records keep the order they have in d.
func WithData(d Data) Option {
	return func(s *Store) {
		for _, p := range d.Projects {
			cp := *p
			s.state.projects[p.ID] = &cp
			s.state.place(p.ID)
		}
		for _, inst := range d.Instances {
			cp := *inst
			s.state.instances[inst.ID] = &cp
			s.state.place(inst.ID)
		}
		for _, st := range d.Stubs {
			s.state.stubs[st.ID] = st.Clone()
			s.state.place(st.ID)
		}
	}
}

// WithCommit registers fn to run, under the write lock, after every change.
// If fn fails the change is rolled back and the error returned to the caller.
func WithCommit(fn func(Data) error) Option {
	return func(s *Store) {
		s.commit = fn
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		state: state{
			projects:  make(map[string]*stub.Project),
			instances: make(map[string]*stub.Instance),
			stubs:     make(map[string]*stub.Stub),
			order:     make(map[string]uint64),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Projects returns the project store.
func (s *Store) Projects() store.ProjectStore { return projectStore{s} }

// Instances returns the instance registry.
func (s *Store) Instances() store.InstanceRegistry { return instanceRegistry{s} }

// Stubs returns the stub repository.
func (s *Store) Stubs() store.StubRepository { return stubRepository{s} }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Snapshot returns a deep copy of the store contents.
func (s *Store) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.snapshot()
}

// mutate runs fn under the write lock. fn reports whether it changed
// anything; it must leave the state untouched when it returns an error.
func (s *Store) mutate(fn func(st *state) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var backup state
	if s.commit != nil {
		backup = s.state.clone()
	}

	changed, err := fn(&s.state)
	if err != nil || !changed || s.commit == nil {
		return err
	}
	if err := s.commit(s.state.snapshot()); err != nil {
		s.state = backup
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func (st *state) place(id string) {
	st.seq++
	st.order[id] = st.seq
}

func (st *state) clone() state {
	c := state{
		projects:  make(map[string]*stub.Project, len(st.projects)),
		instances: make(map[string]*stub.Instance, len(st.instances)),
		stubs:     make(map[string]*stub.Stub, len(st.stubs)),
		order:     make(map[string]uint64, len(st.order)),
		seq:       st.seq,
	}
	for id, p := range st.projects {
		cp := *p
		c.projects[id] = &cp
	}
	for id, inst := range st.instances {
		cp := *inst
		c.instances[id] = &cp
	}
	for id, s := range st.stubs {
		c.stubs[id] = s.Clone()
	}
	for id, n := range st.order {
		c.order[id] = n
	}
	return c
}

func (st *state) snapshot() Data {
	d := Data{Version: DataVersion}
	for _, p := range st.projects {
		cp := *p
		d.Projects = append(d.Projects, &cp)
	}
	for _, inst := range st.instances {
		cp := *inst
		d.Instances = append(d.Instances, &cp)
	}
	for _, s := range st.stubs {
		d.Stubs = append(d.Stubs, s.Clone())
	}
	sort.Slice(d.Projects, func(i, j int) bool { return st.order[d.Projects[i].ID] < st.order[d.Projects[j].ID] })
	sort.Slice(d.Instances, func(i, j int) bool { return st.order[d.Instances[i].ID] < st.order[d.Instances[j].ID] })
	sort.Slice(d.Stubs, func(i, j int) bool { return st.order[d.Stubs[i].ID] < st.order[d.Stubs[j].ID] })
	return d
}

func (st *state) inCreationOrder(ids []string) {
	sort.Slice(ids, func(i, j int) bool { return st.order[ids[i]] < st.order[ids[j]] })
}

// =============================================================================
// Projects
// =============================================================================

type projectStore struct{ s *Store }

func (ps projectStore) List(_ context.Context) ([]*stub.Project, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	ids := make([]string, 0, len(ps.s.state.projects))
	for id := range ps.s.state.projects {
		ids = append(ids, id)
	}
	ps.s.state.inCreationOrder(ids)

	result := make([]*stub.Project, 0, len(ids))
	for _, id := range ids {
		cp := *ps.s.state.projects[id]
		result = append(result, &cp)
	}
	return result, nil
}

func (ps projectStore) Get(_ context.Context, id string) (*stub.Project, error) {
	ps.s.mu.RLock()
	defer ps.s.mu.RUnlock()

	p, ok := ps.s.state.projects[id]
	if !ok {
		return nil, store.NotFound("project", id)
	}
	cp := *p
	return &cp, nil
}

func (ps projectStore) Create(_ context.Context, p *stub.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return ps.s.mutate(func(st *state) (bool, error) {
		if err := store.AssignID("project", &p.ID); err != nil {
			return false, err
		}
		if _, exists := st.projects[p.ID]; exists {
			return false, store.AlreadyExists("project", p.ID)
		}
		now := ps.s.timestamp()
		p.CreatedAt, p.UpdatedAt = now, now
		cp := *p
		st.projects[p.ID] = &cp
		st.place(p.ID)
		return true, nil
	})
}

func (ps projectStore) Delete(_ context.Context, id string) error {
	return ps.s.mutate(func(st *state) (bool, error) {
		if _, ok := st.projects[id]; !ok {
			return false, store.NotFound("project", id)
		}
		delete(st.projects, id)
		delete(st.order, id)
		for iid, inst := range st.instances {
			if inst.ProjectID == id {
				delete(st.instances, iid)
				delete(st.order, iid)
			}
		}
		for sid, s := range st.stubs {
			if s.ProjectID == id {
				delete(st.stubs, sid)
				delete(st.order, sid)
			}
		}
		return true, nil
	})
}

// =============================================================================
// Instances
// =============================================================================

type instanceRegistry struct{ s *Store }

func (r instanceRegistry) List(_ context.Context, projectID string) ([]*stub.Instance, error) {
	return r.list(projectID, false), nil
}

func (r instanceRegistry) ListActive(_ context.Context, projectID string) ([]*stub.Instance, error) {
	return r.list(projectID, true), nil
}

func (r instanceRegistry) list(projectID string, activeOnly bool) []*stub.Instance {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var ids []string
	for id, inst := range r.s.state.instances {
		if inst.ProjectID == projectID && (!activeOnly || inst.Active) {
			ids = append(ids, id)
		}
	}
	r.s.state.inCreationOrder(ids)

	result := make([]*stub.Instance, 0, len(ids))
	for _, id := range ids {
		cp := *r.s.state.instances[id]
		result = append(result, &cp)
	}
	return result
}

func (r instanceRegistry) Get(_ context.Context, id string) (*stub.Instance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	inst, ok := r.s.state.instances[id]
	if !ok {
		return nil, store.NotFound("instance", id)
	}
	cp := *inst
	return &cp, nil
}

func (r instanceRegistry) Create(_ context.Context, inst *stub.Instance) error {
	if err := inst.Validate(); err != nil {
		return err
	}
	return r.s.mutate(func(st *state) (bool, error) {
		if _, ok := st.projects[inst.ProjectID]; !ok {
			return false, store.NotFound("project", inst.ProjectID)
		}
		if err := store.AssignID("instance", &inst.ID); err != nil {
			return false, err
		}
		if _, exists := st.instances[inst.ID]; exists {
			return false, store.AlreadyExists("instance", inst.ID)
		}
		now := r.s.timestamp()
		inst.CreatedAt, inst.UpdatedAt = now, now
		cp := *inst
		st.instances[inst.ID] = &cp
		st.place(inst.ID)
		return true, nil
	})
}

func (r instanceRegistry) Update(_ context.Context, inst *stub.Instance) error {
	return r.s.mutate(func(st *state) (bool, error) {
		cur, ok := st.instances[inst.ID]
		if !ok {
			return false, store.NotFound("instance", inst.ID)
		}
		next := *cur
		next.Name, next.URL, next.Active = inst.Name, inst.URL, inst.Active
		if err := next.Validate(); err != nil {
			return false, err
		}
		next.UpdatedAt = r.s.timestamp()
		st.instances[inst.ID] = &next
		*inst = next
		return true, nil
	})
}

func (r instanceRegistry) Delete(_ context.Context, id string) error {
	return r.s.mutate(func(st *state) (bool, error) {
		if _, ok := st.instances[id]; !ok {
			return false, store.NotFound("instance", id)
		}
		delete(st.instances, id)
		delete(st.order, id)
		return true, nil
	})
}

// =============================================================================
// Stubs
// =============================================================================

type stubRepository struct{ s *Store }

func (r stubRepository) List(_ context.Context, projectID string) ([]*stub.Stub, error) {
	return r.list(projectID, false), nil
}

func (r stubRepository) ListActive(_ context.Context, projectID string) ([]*stub.Stub, error) {
	return r.list(projectID, true), nil
}

func (r stubRepository) list(projectID string, activeOnly bool) []*stub.Stub {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var ids []string
	for id, s := range r.s.state.stubs {
		if s.ProjectID == projectID && (!activeOnly || s.Active) {
			ids = append(ids, id)
		}
	}
	r.s.state.inCreationOrder(ids)

	result := make([]*stub.Stub, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.s.state.stubs[id].Clone())
	}
	return result
}

func (r stubRepository) Get(_ context.Context, id string) (*stub.Stub, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	s, ok := r.s.state.stubs[id]
	if !ok {
		return nil, store.NotFound("stub", id)
	}
	return s.Clone(), nil
}

func (r stubRepository) Create(_ context.Context, s *stub.Stub) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return r.s.mutate(func(st *state) (bool, error) {
		if _, ok := st.projects[s.ProjectID]; !ok {
			return false, store.NotFound("project", s.ProjectID)
		}
		if err := store.AssignID("stub", &s.ID); err != nil {
			return false, err
		}
		if _, exists := st.stubs[s.ID]; exists {
			return false, store.AlreadyExists("stub", s.ID)
		}
		now := r.s.timestamp()
		s.Version = 1
		s.CreatedAt, s.UpdatedAt = now, now
		st.stubs[s.ID] = s.Clone()
		st.place(s.ID)
		return true, nil
	})
}

func (r stubRepository) Update(_ context.Context, s *stub.Stub) error {
	return r.s.mutate(func(st *state) (bool, error) {
		cur, ok := st.stubs[s.ID]
		if !ok {
			return false, store.NotFound("stub", s.ID)
		}
		next := cur.Clone()
		next.Name, next.Description, next.Active = s.Name, s.Description, s.Active
		next.UpdatedAt = r.s.timestamp()
		st.stubs[s.ID] = next
		*s = *next.Clone()
		return true, nil
	})
}

func (r stubRepository) UpdateMappingPayload(_ context.Context, id string, mapping json.RawMessage) (*stub.Stub, error) {
	if err := stub.ValidateMapping(mapping); err != nil {
		return nil, err
	}

	var out *stub.Stub
	err := r.s.mutate(func(st *state) (bool, error) {
		cur, ok := st.stubs[id]
		if !ok {
			return false, store.NotFound("stub", id)
		}
		if stub.SamePayload(cur.Mapping, mapping) {
			out = cur.Clone()
			return false, nil
		}
		next := cur.Clone()
		next.Mapping = append(json.RawMessage(nil), mapping...)
		next.Version++
		next.UpdatedAt = r.s.timestamp()
		st.stubs[id] = next
		out = next.Clone()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r stubRepository) Delete(_ context.Context, id string) error {
	return r.s.mutate(func(st *state) (bool, error) {
		if _, ok := st.stubs[id]; !ok {
			return false, store.NotFound("stub", id)
		}
		delete(st.stubs, id)
		delete(st.order, id)
		return true, nil
	})
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
