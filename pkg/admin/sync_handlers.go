package admin

import (
	"net/http"

	"github.com/ykagano/wiremock-jp/pkg/httputil"
	"github.com/ykagano/wiremock-jp/pkg/stub"
	"github.com/ykagano/wiremock-jp/pkg/syncer"
)

// handleSyncStub handles POST /api/stubs/{id}/sync.
func (a *API) handleSyncStub(w http.ResponseWriter, r *http.Request) {
	var req SyncStubRequest
	if !decodeInstanceRequest(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := a.syncer.SyncOne(r.Context(), id, req.InstanceID); err != nil {
		a.writeErr(w, "sync stub", err)
		return
	}
	a.writeStubSynced(w, r, id, req.InstanceID)
}

// handleRecoverStub handles POST /api/stubs/{id}/recover.
func (a *API) handleRecoverStub(w http.ResponseWriter, r *http.Request) {
	var req SyncStubRequest
	if !decodeInstanceRequest(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if _, err := a.syncer.Recover(r.Context(), id, req.InstanceID); err != nil {
		a.writeErr(w, "recover stub", err)
		return
	}
	a.writeStubSynced(w, r, id, req.InstanceID)
}

// handleSyncAll handles POST /api/stubs/sync-all. Item failures do not
// change the status; they are listed per instance in the body.
func (a *API) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	var req SyncAllRequest
	if err := httputil.DecodeJSON(w, r, &req, false); err != nil {
		httputil.WriteBadRequest(w, codeInvalidRequest, err.Error())
		return
	}
	if req.ProjectID == "" {
		httputil.WriteBadRequest(w, codeInvalidRequest, "projectId is required")
		return
	}

	var results []syncer.InstanceResult
	if req.InstanceID != "" {
		res, err := a.syncer.SyncAll(r.Context(), req.ProjectID, req.InstanceID)
		if err != nil {
			a.writeErr(w, "sync all", err)
			return
		}
		inst, err := a.store.Instances().Get(r.Context(), req.InstanceID)
		if err != nil {
			a.writeErr(w, "get instance", err)
			return
		}
		results = []syncer.InstanceResult{{Instance: inst, Result: res}}
	} else {
		var err error
		if results, err = a.syncer.SyncProject(r.Context(), req.ProjectID); err != nil {
			a.writeErr(w, "sync project", err)
			return
		}
	}

	resp := SyncAllResponse{Results: results}
	for _, ir := range results {
		if ir.Result != nil {
			resp.Succeeded += ir.Result.Succeeded
			resp.Failed += ir.Result.Failed
		}
	}
	httputil.WriteOK(w, resp)
}

func decodeInstanceRequest(w http.ResponseWriter, r *http.Request, req *SyncStubRequest) bool {
	if err := httputil.DecodeJSON(w, r, req, false); err != nil {
		httputil.WriteBadRequest(w, codeInvalidRequest, err.Error())
		return false
	}
	if req.InstanceID == "" {
		httputil.WriteBadRequest(w, codeInvalidRequest, "instanceId is required")
		return false
	}
	return true
}

func (a *API) writeStubSynced(w http.ResponseWriter, r *http.Request, stubID, instanceID string) {
	st, err := a.store.Stubs().Get(r.Context(), stubID)
	if err != nil {
		a.writeErr(w, "get stub", err)
		return
	}
	resp := SyncStubResponse{StubID: st.ID, InstanceID: instanceID, Version: st.Version}
	if ref, ok := st.Ref().(stub.Synced); ok {
		resp.RemoteID = ref.RemoteID
	}
	httputil.WriteOK(w, resp)
}
