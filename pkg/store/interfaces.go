package store

import (
	"context"
	"encoding/json"

	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// Store is the main interface for data persistence.
type Store interface {
	Projects() ProjectStore
	Instances() InstanceRegistry
	Stubs() StubRepository

	Close() error
}

// ProjectStore handles project persistence. Deleting a project deletes its
// instances and stubs.
type ProjectStore interface {
	List(ctx context.Context) ([]*stub.Project, error)
	Get(ctx context.Context, id string) (*stub.Project, error)
	// Create stores p, assigning ID (when empty) and timestamps.
	Create(ctx context.Context, p *stub.Project) error
	Delete(ctx context.Context, id string) error
}

// InstanceRegistry handles WireMock instance persistence. Lists are returned
// in creation order.
type InstanceRegistry interface {
	List(ctx context.Context, projectID string) ([]*stub.Instance, error)
	ListActive(ctx context.Context, projectID string) ([]*stub.Instance, error)
	Get(ctx context.Context, id string) (*stub.Instance, error)
	// Create stores inst, assigning ID (when empty) and timestamps. The
	// owning project must exist.
	Create(ctx context.Context, inst *stub.Instance) error
	// Update replaces name, URL and activity of an existing instance.
	Update(ctx context.Context, inst *stub.Instance) error
	Delete(ctx context.Context, id string) error
}

// StubRepository handles stub persistence. Lists are returned in creation
// order.
type StubRepository interface {
	List(ctx context.Context, projectID string) ([]*stub.Stub, error)
	// ListActive returns only stubs whose activity flag is set.
	ListActive(ctx context.Context, projectID string) ([]*stub.Stub, error)
	Get(ctx context.Context, id string) (*stub.Stub, error)
	// Create stores s with Version 1, assigning ID (when empty) and
	// timestamps. The owning project must exist and the mapping must be valid.
	Create(ctx context.Context, s *stub.Stub) error
	// Update replaces name, description and activity. The mapping and the
	// version are left untouched.
	Update(ctx context.Context, s *stub.Stub) error
	// UpdateMappingPayload replaces the mapping of stub id atomically with
	// respect to other writers of the same stub. Version is bumped by one
	// unless mapping equals the stored payload. It returns the stored stub.
	UpdateMappingPayload(ctx context.Context, id string, mapping json.RawMessage) (*stub.Stub, error)
	Delete(ctx context.Context, id string) error
}
