package admin

import (
	"net/http"

	"github.com/ykagano/wiremock-jp/pkg/httputil"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// handleListInstances handles GET /api/wiremock-instances?projectId=.
func (a *API) handleListInstances(w http.ResponseWriter, r *http.Request) {
	projectID, ok := a.requireProject(w, r)
	if !ok {
		return
	}
	insts, err := a.store.Instances().List(r.Context(), projectID)
	if err != nil {
		a.writeErr(w, "list instances", err)
		return
	}
	httputil.WriteOK(w, insts)
}

// handleCreateInstance handles POST /api/wiremock-instances.
func (a *API) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req CreateInstanceRequest
	if err := httputil.DecodeJSON(w, r, &req, false); err != nil {
		httputil.WriteBadRequest(w, codeInvalidRequest, err.Error())
		return
	}
	inst := &stub.Instance{
		ProjectID: req.ProjectID,
		Name:      req.Name,
		URL:       req.URL,
		Active:    req.Active == nil || *req.Active,
	}
	if err := a.store.Instances().Create(r.Context(), inst); err != nil {
		a.writeErr(w, "create instance", err)
		return
	}
	httputil.WriteCreated(w, inst)
}

// handleGetInstance handles GET /api/wiremock-instances/{id}. The instance
// is probed on every call.
func (a *API) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := a.store.Instances().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeErr(w, "get instance", err)
		return
	}
	healthy := a.prober.ProbeURL(r.Context(), inst.URL)
	a.metrics.ObserveProbe(inst.ID, healthy)
	httputil.WriteOK(w, InstanceResponse{Instance: inst, Healthy: healthy})
}

// handleUpdateInstance handles PUT /api/wiremock-instances/{id}.
func (a *API) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdateInstanceRequest
	if err := httputil.DecodeJSON(w, r, &req, false); err != nil {
		httputil.WriteBadRequest(w, codeInvalidRequest, err.Error())
		return
	}
	inst, err := a.store.Instances().Get(ctx, r.PathValue("id"))
	if err != nil {
		a.writeErr(w, "get instance", err)
		return
	}
	if req.Name != nil {
		inst.Name = *req.Name
	}
	if req.URL != nil {
		inst.URL = *req.URL
	}
	if req.Active != nil {
		inst.Active = *req.Active
	}
	if err := a.store.Instances().Update(ctx, inst); err != nil {
		a.writeErr(w, "update instance", err)
		return
	}
	if inst, err = a.store.Instances().Get(ctx, inst.ID); err != nil {
		a.writeErr(w, "get instance", err)
		return
	}
	httputil.WriteOK(w, inst)
}

// handleDeleteInstance handles DELETE /api/wiremock-instances/{id}.
func (a *API) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Instances().Delete(r.Context(), r.PathValue("id")); err != nil {
		a.writeErr(w, "delete instance", err)
		return
	}
	httputil.WriteNoContent(w)
}

// remote looks up the instance named by the path and builds its client.
func (a *API) remote(w http.ResponseWriter, r *http.Request) (RemoteClient, bool) {
	inst, err := a.store.Instances().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeErr(w, "get instance", err)
		return nil, false
	}
	return a.newClient(inst), true
}

// handleInstanceMappings handles GET /api/wiremock-instances/{id}/mappings.
func (a *API) handleInstanceMappings(w http.ResponseWriter, r *http.Request) {
	client, ok := a.remote(w, r)
	if !ok {
		return
	}
	mappings, err := client.ListMappings(r.Context())
	if err != nil {
		a.writeErr(w, "list mappings", err)
		return
	}
	httputil.WriteOK(w, mappings)
}

// handleInstanceMapping handles GET /api/wiremock-instances/{id}/mappings/{mappingId}.
func (a *API) handleInstanceMapping(w http.ResponseWriter, r *http.Request) {
	client, ok := a.remote(w, r)
	if !ok {
		return
	}
	mapping, err := client.GetMapping(r.Context(), r.PathValue("mappingId"))
	if err != nil {
		a.writeErr(w, "get mapping", err)
		return
	}
	httputil.WriteOK(w, mapping)
}

// handleInstanceRequests handles GET /api/wiremock-instances/{id}/requests.
func (a *API) handleInstanceRequests(w http.ResponseWriter, r *http.Request) {
	client, ok := a.remote(w, r)
	if !ok {
		return
	}
	reqs, err := client.ListRequests(r.Context())
	if err != nil {
		a.writeErr(w, "list requests", err)
		return
	}
	httputil.WriteOK(w, reqs)
}

// handleInstanceUnmatched handles GET /api/wiremock-instances/{id}/requests/unmatched.
func (a *API) handleInstanceUnmatched(w http.ResponseWriter, r *http.Request) {
	client, ok := a.remote(w, r)
	if !ok {
		return
	}
	reqs, err := client.ListUnmatchedRequests(r.Context())
	if err != nil {
		a.writeErr(w, "list unmatched requests", err)
		return
	}
	httputil.WriteOK(w, reqs)
}

// handleClearInstanceRequests handles DELETE /api/wiremock-instances/{id}/requests.
func (a *API) handleClearInstanceRequests(w http.ResponseWriter, r *http.Request) {
	client, ok := a.remote(w, r)
	if !ok {
		return
	}
	if err := client.ClearRequests(r.Context()); err != nil {
		a.writeErr(w, "clear requests", err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleResetInstance handles POST /api/wiremock-instances/{id}/reset.
func (a *API) handleResetInstance(w http.ResponseWriter, r *http.Request) {
	client, ok := a.remote(w, r)
	if !ok {
		return
	}
	if err := client.Reset(r.Context()); err != nil {
		a.writeErr(w, "reset instance", err)
		return
	}
	httputil.WriteNoContent(w)
}
