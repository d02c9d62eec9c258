package admin

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/wiremock"
)

func TestInstances(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/wiremock-instances", CreateInstanceRequest{
		ProjectID: e.project.ID, Name: "staging", URL: "http://staging:8080",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[stub.Instance](t, rec)
	assert.True(t, created.Active)

	rec = e.do(t, http.MethodGet, "/api/wiremock-instances?projectId="+e.project.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]stub.Instance](t, rec), 2)

	rec = e.do(t, http.MethodPut, "/api/wiremock-instances/"+created.ID, map[string]any{"isActive": false})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[stub.Instance](t, rec)
	assert.False(t, updated.Active)
	assert.Equal(t, "staging", updated.Name)

	rec = e.do(t, http.MethodPut, "/api/wiremock-instances/"+created.ID, map[string]any{"url": "ftp://nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodDelete, "/api/wiremock-instances/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestInstances_CreateInvalidURL(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/wiremock-instances", CreateInstanceRequest{
		ProjectID: e.project.ID, Name: "bad", URL: "localhost:8080",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorBody(t, rec).Error)
}

func TestGetInstance_ReportsHealth(t *testing.T) {
	e := newEnv(t)
	dead := &stub.Instance{ProjectID: e.project.ID, Name: "dead", URL: deadURL(t), Active: true}
	require.NoError(t, e.store.Instances().Create(context.Background(), dead))

	rec := e.do(t, http.MethodGet, "/api/wiremock-instances/"+e.instance.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, true, got["isHealthy"])
	assert.Equal(t, e.instance.ID, got["id"])
	assert.Equal(t, true, got["isActive"])

	rec = e.do(t, http.MethodGet, "/api/wiremock-instances/"+dead.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["isHealthy"])

	rec = e.do(t, http.MethodGet, "/api/wiremock-instances/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInstancePassthrough(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: e.instance.ID}).Code)
	base := "/api/wiremock-instances/" + e.instance.ID

	rec := e.do(t, http.MethodGet, base+"/mappings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mappings := decode[wiremock.MappingsResponse](t, rec)
	require.Len(t, mappings.Mappings, 1)
	assert.Equal(t, "remote-1", mappings.Mappings[0].ID)

	rec = e.do(t, http.MethodGet, base+"/mappings/remote-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[wiremock.Mapping](t, rec)
	assert.Equal(t, "remote-1", one.ID)
	assert.Equal(t, st.ID, stub.TaggedStubID(one.Metadata))

	rec = e.do(t, http.MethodGet, base+"/mappings/nope", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "remote_rejected", errorBody(t, rec).Error)

	rec = e.do(t, http.MethodGet, base+"/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[wiremock.RequestsResponse](t, rec).Requests, 2)

	rec = e.do(t, http.MethodGet, base+"/requests/unmatched", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unmatched := decode[wiremock.RequestsResponse](t, rec)
	require.Len(t, unmatched.Requests, 1)
	assert.False(t, unmatched.Requests[0].WasMatched)

	rec = e.do(t, http.MethodDelete, base+"/requests", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, e.remote.cleared)

	rec = e.do(t, http.MethodPost, base+"/reset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, e.remote.resets)
}

func TestInstancePassthrough_Errors(t *testing.T) {
	e := newEnv(t)
	dead := &stub.Instance{ProjectID: e.project.ID, Name: "dead", URL: deadURL(t), Active: true}
	require.NoError(t, e.store.Instances().Create(context.Background(), dead))

	for _, path := range []string{"/mappings", "/requests", "/requests/unmatched"} {
		t.Run(path, func(t *testing.T) {
			rec := e.do(t, http.MethodGet, "/api/wiremock-instances/"+dead.ID+path, nil)
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			assert.Equal(t, "remote_unavailable", errorBody(t, rec).Error)

			rec = e.do(t, http.MethodGet, "/api/wiremock-instances/missing"+path, nil)
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}

	rec := e.do(t, http.MethodPost, "/api/wiremock-instances/"+dead.ID+"/reset", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

type recordingClient struct {
	wiremock.Client
	resets int
}

func (c *recordingClient) Reset(context.Context) error {
	c.resets++
	return nil
}

func TestWithClientFactory(t *testing.T) {
	e := newEnv(t)
	client := &recordingClient{}
	var built []string
	h := newEnvHandler(e, WithClientFactory(func(inst *stub.Instance) RemoteClient {
		built = append(built, inst.ID)
		return client
	}))

	rec := do(t, h, http.MethodPost, "/api/wiremock-instances/"+e.instance.ID+"/reset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, client.resets)
	assert.Equal(t, []string{e.instance.ID}, built)
	assert.Equal(t, 0, e.remote.resets)
}
