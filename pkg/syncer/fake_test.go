package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/store/memory"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// fakeWireMock is an in-process stand-in for the WireMock admin API.
type fakeWireMock struct {
	t      *testing.T
	server *httptest.Server

	mu        sync.Mutex
	mappings  map[string]json.RawMessage
	order     []string
	creates   []json.RawMessage
	updateIDs []string
	nextIDs   []string
	seq       int

	// reject makes POST and PUT answer 400 for mappings whose request url
	// is in the set.
	reject map[string]bool
	// upsert makes PUT to an unknown id create it instead of answering 404.
	upsert bool
	// gate, when set, blocks every POST and PUT until it is closed.
	gate chan struct{}
	// anonymous makes POST store the mapping but answer without its id.
	anonymous bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeWireMock(t *testing.T) *fakeWireMock {
	t.Helper()
	f := &fakeWireMock{
		t:        t,
		mappings: make(map[string]json.RawMessage),
		reject:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /__admin/mappings", f.list)
	mux.HandleFunc("POST /__admin/mappings", f.create)
	mux.HandleFunc("PUT /__admin/mappings/{id}", f.update)
	mux.HandleFunc("DELETE /__admin/mappings/{id}", f.remove)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeWireMock) URL() string { return f.server.URL }

// seed stores a mapping as if it had been created earlier.
func (f *fakeWireMock) seed(id string, payload json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mappings[id] = payload
	f.order = append(f.order, id)
}

// queueIDs makes the next creates return these identifiers.
func (f *fakeWireMock) queueIDs(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextIDs = append(f.nextIDs, ids...)
}

// rejectURL makes create and update fail for mappings matching url.
func (f *fakeWireMock) rejectURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reject[url] = true
}

func (f *fakeWireMock) rejects(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reject[url]
}

func (f *fakeWireMock) setAnonymous(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.anonymous = on
}

func (f *fakeWireMock) setUpsert(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsert = on
}

// hold blocks every create and update until the returned release is called.
func (f *fakeWireMock) hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeWireMock) wait() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (f *fakeWireMock) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func (f *fakeWireMock) updates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.updateIDs...)
}

func (f *fakeWireMock) created() []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage(nil), f.creates...)
}

func (f *fakeWireMock) track() func() {
	n := f.inFlight.Add(1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	return func() { f.inFlight.Add(-1) }
}

func requestURL(payload json.RawMessage) string {
	var m struct {
		Request struct {
			URL string `json:"url"`
		} `json:"request"`
	}
	_ = json.Unmarshal(payload, &m)
	return m.Request.URL
}

func (f *fakeWireMock) list(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]json.RawMessage, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.mappings[id])
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"mappings": out, "meta": map[string]int{"total": len(out)}})
}

func (f *fakeWireMock) create(w http.ResponseWriter, r *http.Request) {
	defer f.track()()
	f.wait()

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	raw, _ := json.Marshal(payload)
	if f.rejects(requestURL(raw)) {
		http.Error(w, `{"errors":[{"title":"rejected"}]}`, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	var id string
	if len(f.nextIDs) > 0 {
		id, f.nextIDs = f.nextIDs[0], f.nextIDs[1:]
	} else {
		f.seq++
		id = fmt.Sprintf("mock-%d", f.seq)
	}
	payload["id"], _ = json.Marshal(id)
	stored, _ := json.Marshal(payload)
	f.mappings[id] = stored
	f.order = append(f.order, id)
	f.creates = append(f.creates, stored)
	anonymous := f.anonymous
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if anonymous {
		_, _ = w.Write([]byte(`{}`))
		return
	}
	_, _ = w.Write(stored)
}

func (f *fakeWireMock) update(w http.ResponseWriter, r *http.Request) {
	defer f.track()()
	f.wait()

	id := r.PathValue("id")
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if f.rejects(requestURL(payload)) {
		http.Error(w, "rejected", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateIDs = append(f.updateIDs, id)
	if _, ok := f.mappings[id]; !ok {
		if !f.upsert {
			http.Error(w, "mapping not found", http.StatusNotFound)
			return
		}
		f.order = append(f.order, id)
	}
	f.mappings[id] = payload
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
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
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusOK)
}

// has reports whether the instance holds a mapping with this id.
func (f *fakeWireMock) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.mappings[id]
	return ok
}

// deadURL returns a base URL nothing listens on.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

// fixture is a project with one instance backed by a memory store.
type fixture struct {
	store    *memory.Store
	project  *stub.Project
	instance *stub.Instance
	remote   *fakeWireMock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.New(), remote: newFakeWireMock(t)}

	f.project = &stub.Project{Name: "P"}
	require.NoError(t, f.store.Projects().Create(ctx, f.project))
	f.instance = f.addInstance(t, f.remote.URL(), true)
	return f
}

func (f *fixture) addInstance(t *testing.T, url string, active bool) *stub.Instance {
	t.Helper()
	inst := &stub.Instance{ProjectID: f.project.ID, Name: "I", URL: url, Active: active}
	require.NoError(t, f.store.Instances().Create(context.Background(), inst))
	return inst
}

func (f *fixture) addStub(t *testing.T, mapping string, active bool) *stub.Stub {
	t.Helper()
	st := &stub.Stub{ProjectID: f.project.ID, Mapping: json.RawMessage(mapping), Active: active}
	require.NoError(t, f.store.Stubs().Create(context.Background(), st))
	return st
}

func (f *fixture) get(t *testing.T, id string) *stub.Stub {
	t.Helper()
	st, err := f.store.Stubs().Get(context.Background(), id)
	require.NoError(t, err)
	return st
}

func mapping(url string) string {
	return fmt.Sprintf(`{"request":{"method":"GET","url":%q},"response":{"status":200}}`, url)
}

func mappingWithID(id, url string) string {
	return fmt.Sprintf(`{"id":%q,"request":{"method":"GET","url":%q},"response":{"status":200}}`, id, url)
}

// flakyStore fails UpdateMappingPayload while failWrites is set.
type flakyStore struct {
	store.Store
	failWrites atomic.Bool
}

func (s *flakyStore) Stubs() store.StubRepository {
	return flakyStubs{StubRepository: s.Store.Stubs(), s: s}
}

type flakyStubs struct {
	store.StubRepository
	s *flakyStore
}

func (r flakyStubs) UpdateMappingPayload(ctx context.Context, id string, m json.RawMessage) (*stub.Stub, error) {
	if r.s.failWrites.Load() {
		return nil, errors.New("database is locked")
	}
	return r.StubRepository.UpdateMappingPayload(ctx, id, m)
}
