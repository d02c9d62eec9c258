package admin

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykagano/wiremock-jp/pkg/stub"
)

func TestHandleHealth(t *testing.T) {
	e := newEnv(t, WithVersion("1.2.3"))

	rec := e.do(t, http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, "1.2.3", got.Version)
	assert.NotEmpty(t, got.Timestamp)
}

func TestProjects(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{Name: "second"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[stub.Project](t, rec)
	assert.NotEmpty(t, created.ID)

	rec = e.do(t, http.MethodGet, "/api/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]stub.Project](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "demo", list[0].Name)
	assert.Equal(t, "second", list[1].Name)

	rec = e.do(t, http.MethodGet, "/api/projects/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/projects/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/projects/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorBody(t, rec).Error)
}

func TestProjects_Validation(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/projects", CreateProjectRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorBody(t, rec).Error)

	rec = e.do(t, http.MethodPost, "/api/projects", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorBody(t, rec).Error)
}

func TestDeleteProject_Cascades(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))

	rec := e.do(t, http.MethodDelete, "/api/projects/"+e.project.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/stubs/"+st.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/wiremock-instances/"+e.instance.ID, nil).Code)
}

func TestProjectHealth(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodGet, "/api/projects/"+e.project.ID+"/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[ProjectHealthResponse](t, rec)
	require.Len(t, got.Instances, 1)
	assert.True(t, got.Instances[0].Healthy)

	rec = e.do(t, http.MethodGet, "/api/projects/missing/health", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStubs(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/stubs", map[string]any{
		"projectId": e.project.ID,
		"name":      "users",
		"mapping":   json.RawMessage(mappingJSON("/users")),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[stub.Stub](t, rec)
	assert.Equal(t, 1, created.Version)
	assert.True(t, created.Active)

	rec = e.do(t, http.MethodGet, "/api/stubs?projectId="+e.project.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]stub.Stub](t, rec), 1)

	rec = e.do(t, http.MethodPut, "/api/stubs/"+created.ID, map[string]any{"name": "renamed", "isActive": false})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[stub.Stub](t, rec)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.Active)
	assert.Equal(t, 1, updated.Version, "metadata updates keep the version")

	rec = e.do(t, http.MethodPut, "/api/stubs/"+created.ID, map[string]any{"mapping": json.RawMessage(mappingJSON("/people"))})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[stub.Stub](t, rec).Version)

	rec = e.do(t, http.MethodDelete, "/api/stubs/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/stubs/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStubs_Errors(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"list without project", http.MethodGet, "/api/stubs", nil, http.StatusBadRequest, "invalid_request"},
		{"list unknown project", http.MethodGet, "/api/stubs?projectId=nope", nil, http.StatusNotFound, "not_found"},
		{"create without response", http.MethodPost, "/api/stubs", map[string]any{
			"projectId": e.project.ID, "mapping": json.RawMessage(`{"request":{}}`),
		}, http.StatusBadRequest, "validation_error"},
		{"create in unknown project", http.MethodPost, "/api/stubs", map[string]any{
			"projectId": "nope", "mapping": json.RawMessage(mappingJSON("/x")),
		}, http.StatusNotFound, "not_found"},
		{"update with bad mapping", http.MethodPut, "/api/stubs/" + st.ID, map[string]any{
			"mapping": json.RawMessage(`{"request":[],"response":{}}`),
		}, http.StatusBadRequest, "validation_error"},
		{"update unknown", http.MethodPut, "/api/stubs/nope", map[string]any{"name": "x"}, http.StatusNotFound, "not_found"},
		{"unknown field", http.MethodPut, "/api/stubs/" + st.ID, map[string]any{"colour": "red"}, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, errorBody(t, rec).Error)
		})
	}
}
