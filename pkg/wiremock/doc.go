// Package wiremock is a thin client for the WireMock admin API.
//
// A Client is bound to one instance base URL and holds no state beyond its
// configuration, so callers construct one per instance when they need it and
// drop it afterwards:
//
//	c := wiremock.New("http://localhost:8080")
//	id, err := c.CreateMapping(ctx, payload)
//
// Every call is a single HTTP round trip with its own deadline: probes use
// DefaultProbeTimeout, everything else DefaultTimeout. Nothing is retried.
//
// Failures come in two shapes. An *UnavailableError (matching ErrUnavailable)
// means the instance could not be reached at all; a *RejectedError (matching
// ErrRejected) means it answered with a non-success status.
package wiremock
