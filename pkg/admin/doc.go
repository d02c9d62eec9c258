// Package admin provides the JSON HTTP API of wiremock-jp.
//
// It exposes project, instance and stub records, drives the synchronization
// orchestrator and passes selected WireMock admin operations through to a
// registered instance.
//
// Endpoints:
//
//	GET    /api/health                                  - Server health check
//	GET    /metrics                                     - Prometheus metrics
//	GET    /api/projects                                - List projects
//	POST   /api/projects                                - Create a project
//	GET    /api/projects/{id}                           - Get a project
//	DELETE /api/projects/{id}                           - Delete a project with its instances and stubs
//	GET    /api/projects/{id}/health                    - Probe every active instance of a project
//	GET    /api/stubs?projectId=                        - List stubs of a project
//	POST   /api/stubs                                   - Create a stub
//	GET    /api/stubs/{id}                              - Get a stub
//	PUT    /api/stubs/{id}                              - Update a stub
//	DELETE /api/stubs/{id}[?instanceId=]                - Delete a stub, optionally removing its mapping
//	POST   /api/stubs/{id}/sync                         - Push one stub to one instance
//	POST   /api/stubs/{id}/recover                      - Resolve a partial reconciliation
//	POST   /api/stubs/sync-all                          - Push all active stubs of a project
//	GET    /api/wiremock-instances?projectId=           - List instances of a project
//	POST   /api/wiremock-instances                      - Register an instance
//	GET    /api/wiremock-instances/{id}                 - Get an instance with its health
//	PUT    /api/wiremock-instances/{id}                 - Update an instance
//	DELETE /api/wiremock-instances/{id}                 - Delete an instance
//	GET    /api/wiremock-instances/{id}/mappings        - Mappings on the instance
//	GET    /api/wiremock-instances/{id}/mappings/{mid}  - One mapping on the instance
//	GET    /api/wiremock-instances/{id}/requests        - Request journal of the instance
//	GET    /api/wiremock-instances/{id}/requests/unmatched
//	DELETE /api/wiremock-instances/{id}/requests        - Clear the request journal
//	POST   /api/wiremock-instances/{id}/reset           - Reset the instance
//
// Errors are returned as {"error": code, "message": text}. Failures of a
// WireMock instance map to 502.
package admin
