package admin

import (
	"net/http"
	"time"

	"github.com/ykagano/wiremock-jp/pkg/httputil"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// handleHealth handles GET /api/health.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, HealthResponse{
		Status:    "ok",
		Version:   a.version,
		Uptime:    a.Uptime(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleListProjects handles GET /api/projects.
func (a *API) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := a.store.Projects().List(r.Context())
	if err != nil {
		a.writeErr(w, "list projects", err)
		return
	}
	httputil.WriteOK(w, projects)
}

// handleCreateProject handles POST /api/projects.
func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := httputil.DecodeJSON(w, r, &req, false); err != nil {
		httputil.WriteBadRequest(w, codeInvalidRequest, err.Error())
		return
	}
	p := &stub.Project{Name: req.Name, Description: req.Description}
	if err := a.store.Projects().Create(r.Context(), p); err != nil {
		a.writeErr(w, "create project", err)
		return
	}
	httputil.WriteCreated(w, p)
}

// handleGetProject handles GET /api/projects/{id}.
func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := a.store.Projects().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeErr(w, "get project", err)
		return
	}
	httputil.WriteOK(w, p)
}

// handleDeleteProject handles DELETE /api/projects/{id}.
func (a *API) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Projects().Delete(r.Context(), r.PathValue("id")); err != nil {
		a.writeErr(w, "delete project", err)
		return
	}
	httputil.WriteNoContent(w)
}

// handleProjectHealth handles GET /api/projects/{id}/health.
func (a *API) handleProjectHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	statuses, err := a.prober.ProbeProject(r.Context(), id)
	if err != nil {
		a.writeErr(w, "probe project", err)
		return
	}
	for _, st := range statuses {
		a.metrics.ObserveProbe(st.InstanceID, st.Healthy)
	}
	httputil.WriteOK(w, ProjectHealthResponse{ProjectID: id, Instances: statuses})
}

// requireProject reads the projectId query parameter and checks it exists.
func (a *API) requireProject(w http.ResponseWriter, r *http.Request) (string, bool) {
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		httputil.WriteBadRequest(w, codeInvalidRequest, "projectId is required")
		return "", false
	}
	if _, err := a.store.Projects().Get(r.Context(), projectID); err != nil {
		a.writeErr(w, "get project", err)
		return "", false
	}
	return projectID, true
}
