package admin

import (
	"encoding/json"

	"github.com/ykagano/wiremock-jp/pkg/health"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    int    `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// CreateProjectRequest is the body of POST /api/projects.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateStubRequest is the body of POST /api/stubs.
type CreateStubRequest struct {
	ProjectID   string          `json:"projectId"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Mapping     json.RawMessage `json:"mapping"`
	Active      *bool           `json:"isActive,omitempty"`
}

// UpdateStubRequest is the body of PUT /api/stubs/{id}. Absent members are
// left unchanged.
type UpdateStubRequest struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	Mapping     json.RawMessage `json:"mapping,omitempty"`
	Active      *bool           `json:"isActive,omitempty"`
}

// CreateInstanceRequest is the body of POST /api/wiremock-instances.
type CreateInstanceRequest struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Active    *bool  `json:"isActive,omitempty"`
}

// UpdateInstanceRequest is the body of PUT /api/wiremock-instances/{id}.
type UpdateInstanceRequest struct {
	Name   *string `json:"name,omitempty"`
	URL    *string `json:"url,omitempty"`
	Active *bool   `json:"isActive,omitempty"`
}

// InstanceResponse is an instance with the outcome of a fresh probe.
type InstanceResponse struct {
	*stub.Instance
	Healthy bool `json:"isHealthy"`
}

// SyncStubRequest is the body of POST /api/stubs/{id}/sync and /recover.
type SyncStubRequest struct {
	InstanceID string `json:"instanceId"`
}

// SyncStubResponse reports a single-stub sync or recovery.
type SyncStubResponse struct {
	StubID     string `json:"stubId"`
	InstanceID string `json:"instanceId"`
	RemoteID   string `json:"remoteId,omitempty"`
	Version    int    `json:"version"`
}

// SyncAllRequest is the body of POST /api/stubs/sync-all. An empty
// InstanceID targets every active instance of the project.
type SyncAllRequest struct {
	ProjectID  string `json:"projectId"`
	InstanceID string `json:"instanceId,omitempty"`
}

// SyncAllResponse reports a batch against one or more instances.
type SyncAllResponse struct {
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Results   []syncer.InstanceResult `json:"results"`
}

// ProjectHealthResponse is the body of GET /api/projects/{id}/health.
type ProjectHealthResponse struct {
	ProjectID string          `json:"projectId"`
	Instances []health.Status `json:"instances"`
}
