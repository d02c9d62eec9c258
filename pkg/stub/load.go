package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Document is one mapping read from a file, ready to become a stub.
type Document struct {
	// Source is the file the mapping came from.
	Source string
	// Name is the mapping's "name" field, or a name derived from the file.
	Name    string
	Mapping json.RawMessage
}

// LoadPaths expands each argument (a file path or a glob, "**" included) and
// loads every matched file. Matches are loaded in lexical order per pattern.
// A pattern that matches nothing is an error so typos do not pass silently.
func LoadPaths(patterns []string) ([]Document, error) {
	var docs []Document
	for _, pattern := range patterns {
		matches, err := expandGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding glob pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, match := range matches {
			loaded, err := LoadFile(match)
			if err != nil {
				return nil, err
			}
			docs = append(docs, loaded...)
		}
	}
	return docs, nil
}

// LoadFile reads mapping documents from a JSON or YAML file. The file may hold
// a single mapping, an array of mappings, or a WireMock export of the form
// {"mappings": [...]}. Every mapping is validated.
func LoadFile(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON %s: %w", path, err)
		}
	}

	items, err := splitDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := make([]Document, 0, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("%s: mapping %d: %w", path, i, err)
		}
		if err := ValidateMapping(raw); err != nil {
			return nil, fmt.Errorf("%s: mapping %d: %w", path, i, err)
		}

		name := base
		if len(items) > 1 {
			name = fmt.Sprintf("%s-%d", base, i+1)
		}
		if n, ok := item["name"].(string); ok && n != "" {
			name = n
		}
		out = append(out, Document{Source: path, Name: name, Mapping: raw})
	}
	return out, nil
}

func splitDocument(doc any) ([]map[string]any, error) {
	switch v := doc.(type) {
	case map[string]any:
		if list, ok := v["mappings"]; ok {
			return toObjects(list)
		}
		return []map[string]any{v}, nil
	case []any:
		return toObjects(v)
	default:
		return nil, fmt.Errorf("%w: expected an object or an array of objects", ErrInvalidMapping)
	}
}

func toObjects(list any) ([]map[string]any, error) {
	arr, ok := list.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: mappings must be an array", ErrInvalidMapping)
	}
	out := make([]map[string]any, 0, len(arr))
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: mapping %d is not an object", ErrInvalidMapping, i)
		}
		out = append(out, obj)
	}
	return out, nil
}

// expandGlob expands a pattern to matching files in lexical order. A pattern
// without glob metacharacters is returned as is so missing files surface as
// read errors.
func expandGlob(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		return []string{pattern}, nil
	}
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}
