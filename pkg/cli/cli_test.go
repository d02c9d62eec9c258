package cli_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/rogpeppe/go-internal/testscript"

	"github.com/ykagano/wiremock-jp/pkg/cli"
)

// TestMain acts as the main entrypoint. Testscript requires its own Main wrapper.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"wmjp": cli.Main,
	}))
}

func TestScripts(t *testing.T) {
	remote := newFakeWireMock(t)
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	testscript.Run(t, testscript.Params{
		Dir: filepath.Join("testdata", "script"),
		Setup: func(env *testscript.Env) error {
			env.Setenv("HOME", env.WorkDir)
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(env.WorkDir, ".config"))
			env.Setenv("WMJP_BACKEND", "file")
			env.Setenv("WMJP_DATA_DIR", filepath.Join(env.WorkDir, "data"))
			env.Setenv("WMJP_SYNC_TIMEOUT", "2s")
			env.Setenv("WMJP_PROBE_TIMEOUT", "1s")
			env.Setenv("WIREMOCK_URL", remote.URL())
			env.Setenv("WIREMOCK_DOWN_URL", downURL)
			return nil
		},
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"jsonvar": cmdJSONVar,
		},
	})
}

// cmdJSONVar sets an environment variable from the last command's stdout.
//
//	jsonvar NAME JSONPATH
func cmdJSONVar(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("unsupported: ! jsonvar")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: jsonvar NAME JSONPATH")
	}
	x, err := jp.ParseString(args[1])
	ts.Check(err)
	data, err := oj.ParseString(ts.ReadFile("stdout"))
	ts.Check(err)
	results := x.Get(data)
	if len(results) != 1 {
		ts.Fatalf("jsonvar %s: %d results for %s", args[0], len(results), args[1])
	}
	ts.Setenv(args[0], fmt.Sprint(results[0]))
}

// fakeWireMock is a minimal in-process WireMock admin API shared by all
// scripts. Scripts run in parallel and only assert on mappings they created.
// Creates for request urls starting with /reject answer 422.
type fakeWireMock struct {
	server *httptest.Server

	mu       sync.Mutex
	mappings map[string]json.RawMessage
	order    []string
	seq      int
}

func newFakeWireMock(t *testing.T) *fakeWireMock {
	t.Helper()
	f := &fakeWireMock{mappings: make(map[string]json.RawMessage)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /__admin/mappings", f.list)
	mux.HandleFunc("POST /__admin/mappings", f.create)
	mux.HandleFunc("GET /__admin/mappings/{id}", f.get)
	mux.HandleFunc("PUT /__admin/mappings/{id}", f.update)
	mux.HandleFunc("DELETE /__admin/mappings/{id}", f.remove)
	mux.HandleFunc("GET /__admin/requests", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, journal(false))
	})
	mux.HandleFunc("GET /__admin/requests/unmatched", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, journal(true))
	})
	mux.HandleFunc("DELETE /__admin/requests", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /__admin/reset", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWireMock) URL() string { return f.server.URL }

func (f *fakeWireMock) list(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]json.RawMessage, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.mappings[id])
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": out, "meta": map[string]int{"total": len(out)}})
}

func (f *fakeWireMock) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mappings[r.PathValue("id")]
	if !ok {
		http.Error(w, "mapping not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (f *fakeWireMock) create(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req, _ := payload["request"].(map[string]any); req != nil {
		if url, _ := req["url"].(string); strings.HasPrefix(url, "/reject") {
			http.Error(w, `{"errors":[{"title":"rejected"}]}`, http.StatusUnprocessableEntity)
			return
		}
	}

	f.mu.Lock()
	f.seq++
	id := fmt.Sprintf("remote-%d", f.seq)
	payload["id"] = id
	stored, _ := json.Marshal(payload)
	f.mappings[id] = stored
	f.order = append(f.order, id)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(stored)
}

func (f *fakeWireMock) remove(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := f.mappings[id]; !ok {
		http.Error(w, "mapping not found", http.StatusNotFound)
		return
	}
	delete(f.mappings, id)
	f.order = slices.DeleteFunc(f.order, func(o string) bool { return o == id })
	w.WriteHeader(http.StatusOK)
}

func (f *fakeWireMock) update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mappings[id]; !ok {
		http.Error(w, "mapping not found", http.StatusNotFound)
		return
	}
	f.mappings[id] = payload
	writeJSON(w, http.StatusOK, payload)
}

func journal(unmatchedOnly bool) map[string]any {
	requests := []map[string]any{
		{
			"id":                 "req-1",
			"request":            map[string]any{"url": "/ping", "method": "GET", "loggedDateString": "2026-01-02T03:04:05Z"},
			"responseDefinition": map[string]any{"status": 200},
			"wasMatched":         true,
		},
		{
			"id":                 "req-2",
			"request":            map[string]any{"url": "/missing", "method": "POST", "loggedDateString": "2026-01-02T03:04:06Z"},
			"responseDefinition": map[string]any{"status": 404},
			"wasMatched":         false,
		},
	}
	if unmatchedOnly {
		requests = requests[1:]
	}
	return map[string]any{"requests": requests, "meta": map[string]int{"total": len(requests)}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
