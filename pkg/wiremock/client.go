package wiremock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ykagano/wiremock-jp/pkg/logging"
)

// Default per-call deadlines.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// maxErrorBody caps how much of a rejection body is kept for reporting.
const maxErrorBody = 4 << 10

const (
	mappingsPath  = "/__admin/mappings"
	requestsPath  = "/__admin/requests"
	unmatchedPath = "/__admin/requests/unmatched"
	resetPath     = "/__admin/reset"
)

// Client is an HTTP client for one WireMock instance.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	probeTimeout time.Duration
	log          *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the deadline for data operations.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithProbeTimeout sets the deadline for health probes.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.probeTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a client for the instance at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{},
		timeout:      DefaultTimeout,
		probeTimeout: DefaultProbeTimeout,
		log:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProbeHealth reports whether the instance answers a mapping listing with a
// success status within the probe timeout. It never returns an error.
func (c *Client) ProbeHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	resp, err := c.send(ctx, http.MethodGet, mappingsPath, nil)
	if err != nil {
		c.log.Debug("health probe failed", "url", c.baseURL, "error", err)
		return false
	}
	defer drain(resp)
	return accepted(resp.StatusCode)
}

// ListMappings returns all mappings on the instance.
func (c *Client) ListMappings(ctx context.Context) (*MappingsResponse, error) {
	var out MappingsResponse
	if err := c.doJSON(ctx, "list mappings", http.MethodGet, mappingsPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMapping returns a single mapping by its remote identifier.
func (c *Client) GetMapping(ctx context.Context, id string) (*Mapping, error) {
	var out Mapping
	if err := c.doJSON(ctx, "get mapping", http.MethodGet, mappingsPath+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMapping posts payload to the mapping collection and returns the
// identifier the instance assigned to it.
func (c *Client) CreateMapping(ctx context.Context, payload json.RawMessage) (string, error) {
	const op = "create mapping"

	var created struct {
		ID   string `json:"id"`
		UUID string `json:"uuid"`
	}
	status, err := c.call(ctx, op, http.MethodPost, mappingsPath, payload, &created)
	if err != nil {
		if accepted(status) {
			return "", &UnconfirmedCreateError{StatusCode: status, Err: err}
		}
		return "", err
	}

	switch {
	case created.ID != "":
		return created.ID, nil
	case created.UUID != "":
		return created.UUID, nil
	default:
		return "", &UnconfirmedCreateError{
			StatusCode: status,
			Err:        &RejectedError{Op: op, StatusCode: status, Body: "response carried no mapping id"},
		}
	}
}

// UpdateMapping replaces the mapping addressed by id with payload.
func (c *Client) UpdateMapping(ctx context.Context, id string, payload json.RawMessage) error {
	return c.doJSON(ctx, "update mapping", http.MethodPut, mappingsPath+"/"+url.PathEscape(id), payload, nil)
}

// DeleteMapping removes the mapping addressed by id.
func (c *Client) DeleteMapping(ctx context.Context, id string) error {
	return c.doJSON(ctx, "delete mapping", http.MethodDelete, mappingsPath+"/"+url.PathEscape(id), nil, nil)
}

// Reset restores the instance to its startup state (mappings, journal and
// scenarios).
func (c *Client) Reset(ctx context.Context) error {
	return c.doJSON(ctx, "reset", http.MethodPost, resetPath, nil, nil)
}

// ListRequests returns the request journal.
func (c *Client) ListRequests(ctx context.Context) (*RequestsResponse, error) {
	var out RequestsResponse
	if err := c.doJSON(ctx, "list requests", http.MethodGet, requestsPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUnmatchedRequests returns journal entries that matched no mapping.
func (c *Client) ListUnmatchedRequests(ctx context.Context) (*RequestsResponse, error) {
	var out RequestsResponse
	if err := c.doJSON(ctx, "list unmatched requests", http.MethodGet, unmatchedPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearRequests empties the request journal.
func (c *Client) ClearRequests(ctx context.Context) error {
	return c.doJSON(ctx, "clear requests", http.MethodDelete, requestsPath, nil, nil)
}

// HTTP helpers

// doJSON performs one data operation under the data timeout, classifies the
// outcome and decodes a success body into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body json.RawMessage, out any) error {
	_, err := c.call(ctx, op, method, path, body, out)
	return err
}

// call is doJSON that also returns the response status, 0 when no response
// arrived.
func (c *Client) call(ctx context.Context, op, method, path string, body json.RawMessage, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return 0, &UnavailableError{Op: op, URL: c.baseURL, Err: err}
	}
	defer drain(resp)

	c.log.Debug("wiremock call",
		"op", op, "method", method, "url", c.baseURL+path,
		"status", resp.StatusCode, "duration", time.Since(start))

	if !accepted(resp.StatusCode) {
		return resp.StatusCode, parseRejection(op, resp)
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// A read that died on the deadline is a reachability problem, not a
		// malformed answer.
		if ctx.Err() != nil {
			return resp.StatusCode, &UnavailableError{Op: op, URL: c.baseURL, Err: ctx.Err()}
		}
		return resp.StatusCode, &RejectedError{Op: op, StatusCode: resp.StatusCode, Body: "invalid response body: " + err.Error()}
	}
	return resp.StatusCode, nil
}

func accepted(status int) bool {
	return status >= 200 && status < 300
}

func (c *Client) send(ctx context.Context, method, path string, body json.RawMessage) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func parseRejection(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &RejectedError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}
}

// drain consumes what is left of the body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
