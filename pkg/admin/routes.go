// Route registration for the admin API.

package admin

import "net/http"

func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.Handle("GET /metrics", a.metrics.Handler())

	// Projects
	mux.HandleFunc("GET /api/projects", a.handleListProjects)
	mux.HandleFunc("POST /api/projects", a.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{id}", a.handleGetProject)
	mux.HandleFunc("DELETE /api/projects/{id}", a.handleDeleteProject)
	mux.HandleFunc("GET /api/projects/{id}/health", a.handleProjectHealth)

	// Stubs
	mux.HandleFunc("POST /api/stubs/sync-all", a.handleSyncAll)
	mux.HandleFunc("GET /api/stubs", a.handleListStubs)
	mux.HandleFunc("POST /api/stubs", a.handleCreateStub)
	mux.HandleFunc("GET /api/stubs/{id}", a.handleGetStub)
	mux.HandleFunc("PUT /api/stubs/{id}", a.handleUpdateStub)
	mux.HandleFunc("DELETE /api/stubs/{id}", a.handleDeleteStub)
	mux.HandleFunc("POST /api/stubs/{id}/sync", a.handleSyncStub)
	mux.HandleFunc("POST /api/stubs/{id}/recover", a.handleRecoverStub)

	// WireMock instances
	mux.HandleFunc("GET /api/wiremock-instances", a.handleListInstances)
	mux.HandleFunc("POST /api/wiremock-instances", a.handleCreateInstance)
	mux.HandleFunc("GET /api/wiremock-instances/{id}", a.handleGetInstance)
	mux.HandleFunc("PUT /api/wiremock-instances/{id}", a.handleUpdateInstance)
	mux.HandleFunc("DELETE /api/wiremock-instances/{id}", a.handleDeleteInstance)
	mux.HandleFunc("GET /api/wiremock-instances/{id}/mappings", a.handleInstanceMappings)
	mux.HandleFunc("GET /api/wiremock-instances/{id}/mappings/{mappingId}", a.handleInstanceMapping)
	mux.HandleFunc("GET /api/wiremock-instances/{id}/requests", a.handleInstanceRequests)
	mux.HandleFunc("GET /api/wiremock-instances/{id}/requests/unmatched", a.handleInstanceUnmatched)
	mux.HandleFunc("DELETE /api/wiremock-instances/{id}/requests", a.handleClearInstanceRequests)
	mux.HandleFunc("POST /api/wiremock-instances/{id}/reset", a.handleResetInstance)
}
