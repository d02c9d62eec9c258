package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
)

func TestSyncStub(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))

	rec := e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: e.instance.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[SyncStubResponse](t, rec)
	assert.Equal(t, "remote-1", got.RemoteID)
	assert.Equal(t, 2, got.Version)

	rec = e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: e.instance.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "remote-1", decode[SyncStubResponse](t, rec).RemoteID)
	assert.Len(t, e.remote.mappings, 1, "second sync must update, not create")
}

func TestDeleteStub_RemovesRemoteMapping(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: e.instance.ID}).Code)
	require.Len(t, e.remote.mappings, 1)

	dead := &stub.Instance{ProjectID: e.project.ID, Name: "dead", URL: deadURL(t), Active: true}
	require.NoError(t, e.store.Instances().Create(context.Background(), dead))
	rec := e.do(t, http.MethodDelete, "/api/stubs/"+st.ID+"?instanceId="+dead.ID, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	_, err := e.store.Stubs().Get(context.Background(), st.ID)
	require.NoError(t, err, "stub must survive a failed remote removal")

	rec = e.do(t, http.MethodDelete, "/api/stubs/"+st.ID+"?instanceId="+e.instance.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, e.remote.mappings)
	_, err = e.store.Stubs().Get(context.Background(), st.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSyncStub_ErrorStatuses(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))

	dead := &stub.Instance{ProjectID: e.project.ID, Name: "dead", URL: deadURL(t), Active: true}
	require.NoError(t, e.store.Instances().Create(context.Background(), dead))

	rec := e.do(t, http.MethodPost, "/api/stubs/missing/sync", SyncStubRequest{InstanceID: e.instance.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorBody(t, rec).Error)

	rec = e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: dead.ID})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "remote_unavailable", errorBody(t, rec).Error)

	e.remote.mu.Lock()
	e.remote.reject = true
	e.remote.mu.Unlock()
	rec = e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: e.instance.ID})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "remote_rejected", body.Error)
	assert.Contains(t, body.Message, "422")

	rec = e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// brokenStubs fails every mapping write.
type brokenStubs struct{ store.StubRepository }

func (brokenStubs) UpdateMappingPayload(context.Context, string, json.RawMessage) (*stub.Stub, error) {
	return nil, errors.New("disk full")
}

type brokenStore struct{ store.Store }

func (s brokenStore) Stubs() store.StubRepository { return brokenStubs{s.Store.Stubs()} }

func TestSyncStub_PartialReconciliationThenRecover(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))

	broken := newEnvHandler(e, WithOrchestrator(syncer.New(brokenStore{e.store})))
	rec := do(t, broken, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: e.instance.ID})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "partial_reconciliation", body.Error)
	assert.Equal(t, map[string]any{"remoteId": "remote-1"}, body.Details)

	rec = e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/recover", SyncStubRequest{InstanceID: e.instance.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "remote-1", decode[SyncStubResponse](t, rec).RemoteID)
}

func TestRecover_NothingTagged(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))

	rec := e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/recover", SyncStubRequest{InstanceID: e.instance.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncAll(t *testing.T) {
	e := newEnv(t)
	e.addStub(t, mappingJSON("/a"))
	e.addStub(t, mappingJSON("/b"))

	rec := e.do(t, http.MethodPost, "/api/stubs/sync-all", SyncAllRequest{ProjectID: e.project.ID, InstanceID: e.instance.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[SyncAllResponse](t, rec)
	assert.Equal(t, 2, got.Succeeded)
	assert.Equal(t, 0, got.Failed)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 2, got.Results[0].Result.Created)
	assert.Empty(t, got.Results[0].Result.Failures)
}

func TestSyncAll_EveryInstance(t *testing.T) {
	e := newEnv(t)
	e.addStub(t, mappingJSON("/a"))

	dead := &stub.Instance{ProjectID: e.project.ID, Name: "dead", URL: deadURL(t), Active: true}
	require.NoError(t, e.store.Instances().Create(context.Background(), dead))

	rec := e.do(t, http.MethodPost, "/api/stubs/sync-all", SyncAllRequest{ProjectID: e.project.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[SyncAllResponse](t, rec)
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Results, 2)
	assert.Equal(t, e.instance.ID, got.Results[0].Instance.ID)
	assert.Equal(t, dead.ID, got.Results[1].Instance.ID)
	require.Len(t, got.Results[1].Result.Failures, 1)
	assert.Equal(t, syncer.KindUnavailable, got.Results[1].Result.Failures[0].Kind)
}

func TestSyncAll_Errors(t *testing.T) {
	e := newEnv(t)

	rec := e.do(t, http.MethodPost, "/api/stubs/sync-all", SyncAllRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/stubs/sync-all", SyncAllRequest{ProjectID: "nope", InstanceID: e.instance.ID})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/stubs/sync-all", SyncAllRequest{ProjectID: e.project.ID, InstanceID: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics(t *testing.T) {
	e := newEnv(t)
	st := e.addStub(t, mappingJSON("/a"))
	dead := &stub.Instance{ProjectID: e.project.ID, Name: "dead", URL: deadURL(t), Active: true}
	require.NoError(t, e.store.Instances().Create(context.Background(), dead))

	rec := e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: e.instance.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = e.do(t, http.MethodPost, "/api/stubs/"+st.ID+"/sync", SyncStubRequest{InstanceID: dead.ID})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	rec = e.do(t, http.MethodGet, "/api/projects/"+e.project.ID+"/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	for _, line := range []string{
		`wmjp_admin_requests_total{method="POST",route="POST /api/stubs/{id}/sync",status="200"} 1`,
		`wmjp_admin_requests_total{method="POST",route="POST /api/stubs/{id}/sync",status="502"} 1`,
		`wmjp_synced_stubs_total{outcome="created"} 1`,
		`wmjp_synced_stubs_total{outcome="failed"} 1`,
		`wmjp_sync_failures_total{kind="remote_unavailable"} 1`,
		`wmjp_instance_up{instance="` + e.instance.ID + `"} 1`,
		`wmjp_instance_up{instance="` + dead.ID + `"} 0`,
	} {
		assert.Contains(t, out, line)
	}
}
