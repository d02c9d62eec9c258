package admin

import (
	"net/http"

	"github.com/ykagano/wiremock-jp/pkg/httputil"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// handleListStubs handles GET /api/stubs?projectId=.
func (a *API) handleListStubs(w http.ResponseWriter, r *http.Request) {
	projectID, ok := a.requireProject(w, r)
	if !ok {
		return
	}
	stubs, err := a.store.Stubs().List(r.Context(), projectID)
	if err != nil {
		a.writeErr(w, "list stubs", err)
		return
	}
	httputil.WriteOK(w, stubs)
}

// handleCreateStub handles POST /api/stubs.
func (a *API) handleCreateStub(w http.ResponseWriter, r *http.Request) {
	var req CreateStubRequest
	if err := httputil.DecodeJSON(w, r, &req, false); err != nil {
		httputil.WriteBadRequest(w, codeInvalidRequest, err.Error())
		return
	}
	st := &stub.Stub{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Mapping:     req.Mapping,
		Active:      req.Active == nil || *req.Active,
	}
	if err := a.store.Stubs().Create(r.Context(), st); err != nil {
		a.writeErr(w, "create stub", err)
		return
	}
	httputil.WriteCreated(w, st)
}

// handleGetStub handles GET /api/stubs/{id}.
func (a *API) handleGetStub(w http.ResponseWriter, r *http.Request) {
	st, err := a.store.Stubs().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeErr(w, "get stub", err)
		return
	}
	httputil.WriteOK(w, st)
}

// handleUpdateStub handles PUT /api/stubs/{id}. Metadata and mapping are
// written separately so that only a changed mapping moves the version.
func (a *API) handleUpdateStub(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req UpdateStubRequest
	if err := httputil.DecodeJSON(w, r, &req, false); err != nil {
		httputil.WriteBadRequest(w, codeInvalidRequest, err.Error())
		return
	}
	if req.Mapping != nil {
		if err := stub.ValidateMapping(req.Mapping); err != nil {
			a.writeErr(w, "update stub", err)
			return
		}
	}

	st, err := a.store.Stubs().Get(ctx, id)
	if err != nil {
		a.writeErr(w, "get stub", err)
		return
	}
	if req.Name != nil || req.Description != nil || req.Active != nil {
		if req.Name != nil {
			st.Name = *req.Name
		}
		if req.Description != nil {
			st.Description = *req.Description
		}
		if req.Active != nil {
			st.Active = *req.Active
		}
		if err := a.store.Stubs().Update(ctx, st); err != nil {
			a.writeErr(w, "update stub", err)
			return
		}
	}
	if req.Mapping != nil {
		if st, err = a.store.Stubs().UpdateMappingPayload(ctx, id, req.Mapping); err != nil {
			a.writeErr(w, "update stub mapping", err)
			return
		}
	} else if st, err = a.store.Stubs().Get(ctx, id); err != nil {
		a.writeErr(w, "get stub", err)
		return
	}
	httputil.WriteOK(w, st)
}

// handleDeleteStub handles DELETE /api/stubs/{id}. With ?instanceId= the
// stub's mapping is removed from that instance first.
func (a *API) handleDeleteStub(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if instanceID := r.URL.Query().Get("instanceId"); instanceID != "" {
		if _, err := a.syncer.Unpublish(r.Context(), id, instanceID); err != nil {
			a.writeErr(w, "remove mapping", err)
			return
		}
	}
	if err := a.store.Stubs().Delete(r.Context(), id); err != nil {
		a.writeErr(w, "delete stub", err)
		return
	}
	httputil.WriteNoContent(w)
}
