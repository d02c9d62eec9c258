// Package storetest is a conformance suite that every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykagano/wiremock-jp/pkg/store"
	"github.com/ykagano/wiremock-jp/pkg/stub"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"ProjectLifecycle", testProjectLifecycle},
		{"ProjectDeleteCascades", testProjectDeleteCascades},
		{"InstanceLifecycle", testInstanceLifecycle},
		{"InstanceRequiresProject", testInstanceRequiresProject},
		{"InstanceListActive", testInstanceListActive},
		{"StubLifecycle", testStubLifecycle},
		{"StubListActiveInOrder", testStubListActiveInOrder},
		{"StubMetadataUpdateKeepsVersion", testStubMetadataUpdateKeepsVersion},
		{"StubPayloadUpdateBumpsVersion", testStubPayloadUpdateBumpsVersion},
		{"StubPayloadValidation", testStubPayloadValidation},
		{"StubConcurrentPayloadUpdates", testStubConcurrentPayloadUpdates},
		{"ReturnedRecordsAreCopies", testReturnedRecordsAreCopies},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// Mapping returns a minimal valid mapping for url.
func Mapping(url string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"request":{"method":"GET","url":%q},"response":{"status":200}}`, url))
}

func seedProject(t *testing.T, s store.Store) *stub.Project {
	t.Helper()
	p := &stub.Project{Name: "project"}
	require.NoError(t, s.Projects().Create(context.Background(), p))
	return p
}

func testProjectLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := &stub.Project{Name: "alpha", Description: "first"}
	require.NoError(t, s.Projects().Create(ctx, a))
	require.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	b := &stub.Project{ID: "fixed-id", Name: "beta"}
	require.NoError(t, s.Projects().Create(ctx, b))
	assert.Equal(t, "fixed-id", b.ID)

	err := s.Projects().Create(ctx, &stub.Project{ID: "fixed-id", Name: "dup"})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	assert.ErrorIs(t, s.Projects().Create(ctx, &stub.Project{}), stub.ErrNameRequired)
	assert.ErrorIs(t, s.Projects().Create(ctx, &stub.Project{ID: "not/valid", Name: "x"}), store.ErrInvalidID)

	got, err := s.Projects().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
	assert.Equal(t, "first", got.Description)

	list, err := s.Projects().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)

	require.NoError(t, s.Projects().Delete(ctx, a.ID))
	_, err = s.Projects().Get(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Projects().Delete(ctx, a.ID), store.ErrNotFound)
}

func testProjectDeleteCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	other := seedProject(t, s)

	inst := &stub.Instance{ProjectID: p.ID, Name: "i", URL: "http://localhost:8080", Active: true}
	require.NoError(t, s.Instances().Create(ctx, inst))
	st := &stub.Stub{ProjectID: p.ID, Mapping: Mapping("/a"), Active: true}
	require.NoError(t, s.Stubs().Create(ctx, st))
	keep := &stub.Stub{ProjectID: other.ID, Mapping: Mapping("/b"), Active: true}
	require.NoError(t, s.Stubs().Create(ctx, keep))

	require.NoError(t, s.Projects().Delete(ctx, p.ID))

	_, err := s.Instances().Get(ctx, inst.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Stubs().Get(ctx, st.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Stubs().Get(ctx, keep.ID)
	assert.NoError(t, err)
}

func testInstanceLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	inst := &stub.Instance{ProjectID: p.ID, Name: "local", URL: "http://localhost:8080", Active: true}
	require.NoError(t, s.Instances().Create(ctx, inst))
	require.NotEmpty(t, inst.ID)

	got, err := s.Instances().Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "local", got.Name)
	assert.Equal(t, "http://localhost:8080", got.URL)
	assert.True(t, got.Active)
	assert.Equal(t, p.ID, got.ProjectID)

	got.Name = "renamed"
	got.URL = "https://mock.example.com"
	got.Active = false
	require.NoError(t, s.Instances().Update(ctx, got))

	got, err = s.Instances().Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "https://mock.example.com", got.URL)
	assert.False(t, got.Active)

	got.URL = "not a url"
	assert.ErrorIs(t, s.Instances().Update(ctx, got), stub.ErrInvalidURL)
	assert.ErrorIs(t, s.Instances().Update(ctx, &stub.Instance{ID: "missing", Name: "x", URL: "http://h"}), store.ErrNotFound)

	require.NoError(t, s.Instances().Delete(ctx, inst.ID))
	_, err = s.Instances().Get(ctx, inst.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Instances().Delete(ctx, inst.ID), store.ErrNotFound)
}

func testInstanceRequiresProject(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.Instances().Create(ctx, &stub.Instance{ProjectID: "nope", Name: "i", URL: "http://localhost"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.Instances().Create(ctx, &stub.Instance{ProjectID: "nope", Name: "i", URL: "ftp://localhost"})
	assert.ErrorIs(t, err, stub.ErrInvalidURL)
}

func testInstanceListActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)
	other := seedProject(t, s)

	var ids []string
	for i, active := range []bool{true, false, true} {
		inst := &stub.Instance{ProjectID: p.ID, Name: fmt.Sprintf("i%d", i), URL: "http://localhost:8080", Active: active}
		require.NoError(t, s.Instances().Create(ctx, inst))
		ids = append(ids, inst.ID)
	}
	require.NoError(t, s.Instances().Create(ctx, &stub.Instance{ProjectID: other.ID, Name: "x", URL: "http://h", Active: true}))

	all, err := s.Instances().List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, inst := range all {
		assert.Equal(t, ids[i], inst.ID)
	}

	active, err := s.Instances().ListActive(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, ids[0], active[0].ID)
	assert.Equal(t, ids[2], active[1].ID)

	none, err := s.Instances().List(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testStubLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	st := &stub.Stub{ProjectID: p.ID, Name: "users", Description: "list users", Mapping: Mapping("/users"), Active: true}
	require.NoError(t, s.Stubs().Create(ctx, st))
	require.NotEmpty(t, st.ID)
	assert.Equal(t, 1, st.Version)

	got, err := s.Stubs().Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "users", got.Name)
	assert.Equal(t, "list users", got.Description)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.Active)
	assert.JSONEq(t, string(Mapping("/users")), string(got.Mapping))
	assert.Equal(t, stub.Unsynced{}, got.Ref())

	err = s.Stubs().Create(ctx, &stub.Stub{ProjectID: "missing", Mapping: Mapping("/x")})
	assert.ErrorIs(t, err, store.ErrNotFound)
	err = s.Stubs().Create(ctx, &stub.Stub{ID: st.ID, ProjectID: p.ID, Mapping: Mapping("/x")})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	require.NoError(t, s.Stubs().Delete(ctx, st.ID))
	_, err = s.Stubs().Get(ctx, st.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Stubs().Delete(ctx, st.ID), store.ErrNotFound)
}

func testStubListActiveInOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	var ids []string
	for i, active := range []bool{true, false, true, true} {
		st := &stub.Stub{ProjectID: p.ID, Mapping: Mapping(fmt.Sprintf("/s%d", i)), Active: active}
		require.NoError(t, s.Stubs().Create(ctx, st))
		ids = append(ids, st.ID)
	}

	all, err := s.Stubs().List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, st := range all {
		assert.Equal(t, ids[i], st.ID)
	}

	active, err := s.Stubs().ListActive(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []string{ids[0], ids[2], ids[3]}, []string{active[0].ID, active[1].ID, active[2].ID})
}

func testStubMetadataUpdateKeepsVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	st := &stub.Stub{ProjectID: p.ID, Mapping: Mapping("/a"), Active: true}
	require.NoError(t, s.Stubs().Create(ctx, st))

	update := &stub.Stub{
		ID:          st.ID,
		Name:        "renamed",
		Description: "described",
		Active:      false,
		Mapping:     Mapping("/ignored"),
		Version:     99,
	}
	require.NoError(t, s.Stubs().Update(ctx, update))

	got, err := s.Stubs().Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, "described", got.Description)
	assert.False(t, got.Active)
	assert.Equal(t, 1, got.Version)
	assert.JSONEq(t, string(Mapping("/a")), string(got.Mapping))

	assert.ErrorIs(t, s.Stubs().Update(ctx, &stub.Stub{ID: "missing"}), store.ErrNotFound)
}

func testStubPayloadUpdateBumpsVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	st := &stub.Stub{ProjectID: p.ID, Mapping: Mapping("/a"), Active: true}
	require.NoError(t, s.Stubs().Create(ctx, st))

	withID, err := stub.WithRemoteID(st.Mapping, "mock-99")
	require.NoError(t, err)

	got, err := s.Stubs().UpdateMappingPayload(ctx, st.ID, withID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, stub.Synced{RemoteID: "mock-99"}, got.Ref())

	// Same document, different whitespace: not a mutation.
	var pretty map[string]any
	require.NoError(t, json.Unmarshal(withID, &pretty))
	indented, err := json.MarshalIndent(pretty, "", "  ")
	require.NoError(t, err)
	got, err = s.Stubs().UpdateMappingPayload(ctx, st.ID, indented)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	got, err = s.Stubs().UpdateMappingPayload(ctx, st.ID, Mapping("/b"))
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)

	stored, err := s.Stubs().Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Version)
	assert.JSONEq(t, string(Mapping("/b")), string(stored.Mapping))

	_, err = s.Stubs().UpdateMappingPayload(ctx, "missing", Mapping("/c"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testStubPayloadValidation(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	err := s.Stubs().Create(ctx, &stub.Stub{ProjectID: p.ID, Mapping: json.RawMessage(`{"request":{}}`)})
	assert.ErrorIs(t, err, stub.ErrInvalidMapping)

	st := &stub.Stub{ProjectID: p.ID, Mapping: Mapping("/a")}
	require.NoError(t, s.Stubs().Create(ctx, st))

	_, err = s.Stubs().UpdateMappingPayload(ctx, st.ID, json.RawMessage(`not json`))
	assert.ErrorIs(t, err, stub.ErrInvalidMapping)

	got, err := s.Stubs().Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

func testStubConcurrentPayloadUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	st := &stub.Stub{ProjectID: p.ID, Mapping: Mapping("/a")}
	require.NoError(t, s.Stubs().Create(ctx, st))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Stubs().UpdateMappingPayload(ctx, st.ID, Mapping(fmt.Sprintf("/w%d", i)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Stubs().Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, 1+writers, got.Version)
}

func testReturnedRecordsAreCopies(t *testing.T, s store.Store) {
	ctx := context.Background()
	p := seedProject(t, s)

	st := &stub.Stub{ProjectID: p.ID, Mapping: Mapping("/a"), Name: "orig"}
	require.NoError(t, s.Stubs().Create(ctx, st))

	got, err := s.Stubs().Get(ctx, st.ID)
	require.NoError(t, err)
	got.Name = "changed"
	got.Mapping[0] = '['

	again, err := s.Stubs().Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "orig", again.Name)
	assert.JSONEq(t, string(Mapping("/a")), string(again.Mapping))
}
