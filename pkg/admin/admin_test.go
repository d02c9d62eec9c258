package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ykagano/wiremock-jp/pkg/httputil"
	"github.com/ykagano/wiremock-jp/pkg/store/memory"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// wireMockServer simulates the parts of the WireMock admin API the API
// talks to.
type wireMockServer struct {
	*httptest.Server

	mu       sync.Mutex
	mappings []json.RawMessage
	seq      int
	reject   bool
	cleared  int
	resets   int
}

func newWireMockServer(t *testing.T) *wireMockServer {
	t.Helper()
	ws := &wireMockServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /__admin/mappings", func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		writeRaw(w, http.StatusOK, map[string]any{"mappings": ws.mappings, "meta": map[string]int{"total": len(ws.mappings)}})
	})
	mux.HandleFunc("POST /__admin/mappings", func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.reject {
			http.Error(w, "bad mapping", http.StatusUnprocessableEntity)
			return
		}
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		ws.seq++
		m["id"] = fmt.Sprintf("remote-%d", ws.seq)
		raw, _ := json.Marshal(m)
		ws.mappings = append(ws.mappings, raw)
		writeRaw(w, http.StatusCreated, m)
	})
	mux.HandleFunc("GET /__admin/mappings/{id}", func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		for _, raw := range ws.mappings {
			var m struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(raw, &m) == nil && m.ID == r.PathValue("id") {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(raw)
				return
			}
		}
		http.Error(w, "mapping not found", http.StatusNotFound)
	})
	mux.HandleFunc("DELETE /__admin/mappings/{id}", func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		defer ws.mu.Unlock()
		for i, raw := range ws.mappings {
			var m struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(raw, &m) == nil && m.ID == r.PathValue("id") {
				ws.mappings = append(ws.mappings[:i], ws.mappings[i+1:]...)
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		http.Error(w, "mapping not found", http.StatusNotFound)
	})
	mux.HandleFunc("PUT /__admin/mappings/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
	mux.HandleFunc("GET /__admin/requests", func(w http.ResponseWriter, r *http.Request) {
		writeRaw(w, http.StatusOK, map[string]any{"requests": []map[string]any{
			{"id": "r1", "request": map[string]any{"url": "/a", "method": "GET"}, "wasMatched": true},
			{"id": "r2", "request": map[string]any{"url": "/b", "method": "POST"}, "wasMatched": false},
		}})
	})
	mux.HandleFunc("GET /__admin/requests/unmatched", func(w http.ResponseWriter, r *http.Request) {
		writeRaw(w, http.StatusOK, map[string]any{"requests": []map[string]any{
			{"id": "r2", "request": map[string]any{"url": "/b", "method": "POST"}, "wasMatched": false},
		}})
	})
	mux.HandleFunc("DELETE /__admin/requests", func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		ws.cleared++
		ws.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /__admin/reset", func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		ws.resets++
		ws.mappings = nil
		ws.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	ws.Server = httptest.NewServer(mux)
	t.Cleanup(ws.Close)
	return ws
}

func writeRaw(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// env is an API over a memory store with one project and one instance.
type env struct {
	store    *memory.Store
	handler  http.Handler
	remote   *wireMockServer
	project  *stub.Project
	instance *stub.Instance
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{store: memory.New(), remote: newWireMockServer(t)}

	e.project = &stub.Project{Name: "demo"}
	require.NoError(t, e.store.Projects().Create(ctx, e.project))
	e.instance = &stub.Instance{ProjectID: e.project.ID, Name: "local", URL: e.remote.URL, Active: true}
	require.NoError(t, e.store.Instances().Create(ctx, e.instance))

	e.handler = NewAPI(e.store, opts...).Handler()
	return e
}

func (e *env) addStub(t *testing.T, mapping string) *stub.Stub {
	t.Helper()
	st := &stub.Stub{ProjectID: e.project.ID, Mapping: json.RawMessage(mapping), Active: true}
	require.NoError(t, e.store.Stubs().Create(context.Background(), st))
	return st
}

// newEnvHandler builds a second API over the same store.
func newEnvHandler(e *env, opts ...Option) http.Handler {
	return NewAPI(e.store, opts...).Handler()
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, e.handler, method, path, body)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	return decode[httputil.ErrorResponse](t, rec)
}

func mappingJSON(url string) string {
	return fmt.Sprintf(`{"request":{"method":"GET","url":%q},"response":{"status":200}}`, url)
}
