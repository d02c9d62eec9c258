package stub

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStubRefAndClone(t *testing.T) {
	t.Parallel()

	s := &Stub{ID: "s1", ProjectID: "p", Mapping: json.RawMessage(`{"uuid":"u","request":{},"response":{}}`)}
	if ref := s.Ref(); ref != (Synced{RemoteID: "u"}) {
		t.Errorf("Ref = %#v", ref)
	}

	c := s.Clone()
	c.Mapping[2] = 'X'
	if strings.Contains(string(s.Mapping), "X") {
		t.Error("Clone shares the mapping buffer")
	}
	if (*Stub)(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	if err := (&Project{}).Validate(); !errors.Is(err, ErrNameRequired) {
		t.Errorf("project: %v", err)
	}

	inst := &Instance{ProjectID: "p", Name: "local", URL: "http://localhost:8080"}
	if err := inst.Validate(); err != nil {
		t.Errorf("instance: %v", err)
	}
	inst.URL = "localhost:8080"
	if err := inst.Validate(); !errors.Is(err, ErrInvalidURL) {
		t.Errorf("instance url: %v", err)
	}
	if err := (&Instance{Name: "x", URL: "http://h"}).Validate(); !errors.Is(err, ErrProjectRequired) {
		t.Errorf("instance project: %v", err)
	}

	s := &Stub{ProjectID: "p", Mapping: json.RawMessage(`{"request":{},"response":{}}`)}
	if err := s.Validate(); err != nil {
		t.Errorf("stub: %v", err)
	}
	s.Mapping = json.RawMessage(`{"request":{}}`)
	if err := s.Validate(); !errors.Is(err, ErrInvalidMapping) {
		t.Errorf("stub mapping: %v", err)
	}
}

func TestValidateBaseURL(t *testing.T) {
	t.Parallel()

	valid := []string{"http://localhost:8080", "https://mock.example.com/base"}
	invalid := []string{"", "ftp://h", "http://", "/relative", "::bad"}

	for _, u := range valid {
		if err := ValidateBaseURL(u); err != nil {
			t.Errorf("ValidateBaseURL(%q) = %v", u, err)
		}
	}
	for _, u := range invalid {
		if err := ValidateBaseURL(u); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ValidateBaseURL(%q) = %v, want ErrInvalidURL", u, err)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_JSONSingle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "hello.json", `{"request":{"url":"/hello"},"response":{"status":200}}`)

	docs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	if docs[0].Name != "hello" || docs[0].Source != path {
		t.Errorf("doc = %+v", docs[0])
	}
}

func TestLoadFile_WireMockExport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "export.json", `{"mappings":[
		{"name":"first","request":{},"response":{}},
		{"request":{},"response":{}}
	],"meta":{"total":2}}`)

	docs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].Name != "first" || docs[1].Name != "export-2" {
		t.Errorf("names = %q, %q", docs[0].Name, docs[1].Name)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "stubs.yaml", `
- name: users
  request:
    method: GET
    urlPath: /users
  response:
    status: 200
    jsonBody:
      - id: 1
- request:
    method: POST
    url: /users
  response:
    status: 201
`)

	docs, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	var m struct {
		Response struct {
			Status int `json:"status"`
		} `json:"response"`
	}
	if err := json.Unmarshal(docs[1].Mapping, &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Response.Status != 201 {
		t.Errorf("status = %d, want 201", m.Response.Status)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Errorf("missing: %v", err)
	}
	empty := writeFile(t, dir, "empty.json", "  \n")
	if _, err := LoadFile(empty); err == nil || !strings.Contains(err.Error(), "file is empty") {
		t.Errorf("empty: %v", err)
	}
	invalid := writeFile(t, dir, "invalid.json", `{"request":{}}`)
	if _, err := LoadFile(invalid); !errors.Is(err, ErrInvalidMapping) {
		t.Errorf("invalid: %v", err)
	}
	scalar := writeFile(t, dir, "scalar.yaml", `just a string`)
	if _, err := LoadFile(scalar); !errors.Is(err, ErrInvalidMapping) {
		t.Errorf("scalar: %v", err)
	}
}

func TestLoadPaths_Glob(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"request":{},"response":{}}`)
	writeFile(t, dir, "nested/deep/b.yml", "request: {}\nresponse: {}\n")
	writeFile(t, dir, "nested/c.json", `{"request":{},"response":{}}`)
	writeFile(t, dir, "nested/readme.txt", "ignored")

	docs, err := LoadPaths([]string{filepath.Join(dir, "**", "*.{json,yml}")})
	if err != nil {
		t.Fatalf("LoadPaths: %v", err)
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	if strings.Join(names, ",") != "a,c,b" {
		t.Errorf("names = %v, want [a c b]", names)
	}
}

func TestLoadPaths_NoMatch(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := LoadPaths([]string{filepath.Join(dir, "*.json")})
	if err == nil || !strings.Contains(err.Error(), "no files match") {
		t.Errorf("error = %v", err)
	}
}
