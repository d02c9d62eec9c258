package stub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MetadataKey is the mapping metadata entry under which the local stub ID is
// recorded when a mapping is pushed, so an orphaned remote mapping can be
// traced back to its stub.
const MetadataKey = "wiremock-jp"

// ErrInvalidMapping is returned when a mapping payload is not a usable
// WireMock mapping document.
var ErrInvalidMapping = errors.New("invalid mapping")

// RemoteRef says whether a mapping has been pushed before. It is either
// Unsynced or Synced; switch on the concrete type.
type RemoteRef interface {
	remoteRef()
}

// Unsynced marks a mapping that carries no remote identifier yet.
type Unsynced struct{}

// Synced marks a mapping that already has a remote identifier.
type Synced struct {
	RemoteID string
}

func (Unsynced) remoteRef() {}
func (Synced) remoteRef()   {}

// ExtractRef reads the remote identifier from a mapping payload. "id" takes
// precedence over "uuid"; empty strings and undecodable payloads count as
// absent.
func ExtractRef(mapping json.RawMessage) RemoteRef {
	var ids struct {
		ID   string `json:"id"`
		UUID string `json:"uuid"`
	}
	if len(mapping) == 0 || json.Unmarshal(mapping, &ids) != nil {
		return Unsynced{}
	}
	switch {
	case ids.ID != "":
		return Synced{RemoteID: ids.ID}
	case ids.UUID != "":
		return Synced{RemoteID: ids.UUID}
	default:
		return Unsynced{}
	}
}

// WithRemoteID returns a copy of mapping with "id" set to remoteID. All other
// fields are preserved.
func WithRemoteID(mapping json.RawMessage, remoteID string) (json.RawMessage, error) {
	fields, err := decodeObject(mapping)
	if err != nil {
		return nil, err
	}
	id, _ := json.Marshal(remoteID)
	fields["id"] = id
	return json.Marshal(fields)
}

// TagStubID returns a copy of mapping whose metadata records stubID under
// MetadataKey. Existing metadata entries are kept.
func TagStubID(mapping json.RawMessage, stubID string) (json.RawMessage, error) {
	fields, err := decodeObject(mapping)
	if err != nil {
		return nil, err
	}

	meta := map[string]json.RawMessage{}
	if raw, ok := fields["metadata"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("%w: metadata is not an object", ErrInvalidMapping)
		}
	}
	tag, _ := json.Marshal(map[string]string{"stubId": stubID})
	meta[MetadataKey] = tag

	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	fields["metadata"] = encoded
	return json.Marshal(fields)
}

// TaggedStubID returns the stub ID recorded by TagStubID in a mapping's
// metadata, or "" if there is none.
func TaggedStubID(metadata json.RawMessage) string {
	var meta map[string]json.RawMessage
	if len(metadata) == 0 || json.Unmarshal(metadata, &meta) != nil {
		return ""
	}
	raw, ok := meta[MetadataKey]
	if !ok {
		return ""
	}
	var tag struct {
		StubID string `json:"stubId"`
	}
	if json.Unmarshal(raw, &tag) != nil {
		return ""
	}
	return tag.StubID
}

// SamePayload reports whether a and b are the same JSON text, ignoring
// insignificant whitespace.
func SamePayload(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// ValidateMapping checks that mapping is a JSON object with request and
// response sections shaped like a WireMock stub mapping.
func ValidateMapping(mapping json.RawMessage) error {
	if len(bytes.TrimSpace(mapping)) == 0 {
		return fmt.Errorf("%w: mapping is required", ErrInvalidMapping)
	}

	schema, err := mappingSchema()
	if err != nil {
		return err
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(mapping))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}

	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("%w: %s", ErrInvalidMapping, describeValidation(verr))
		}
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	return nil
}

const mappingSchemaJSON = `{
  "type": "object",
  "required": ["request", "response"],
  "properties": {
    "id": {"type": "string"},
    "uuid": {"type": "string"},
    "name": {"type": "string"},
    "priority": {"type": "integer", "minimum": 1},
    "persistent": {"type": "boolean"},
    "scenarioName": {"type": "string"},
    "requiredScenarioState": {"type": "string"},
    "newScenarioState": {"type": "string"},
    "metadata": {"type": "object"},
    "request": {
      "type": "object",
      "properties": {
        "method": {"type": "string"},
        "url": {"type": "string"},
        "urlPattern": {"type": "string"},
        "urlPath": {"type": "string"},
        "urlPathPattern": {"type": "string"},
        "headers": {"type": "object"},
        "queryParameters": {"type": "object"},
        "cookies": {"type": "object"},
        "bodyPatterns": {"type": "array", "items": {"type": "object"}}
      }
    },
    "response": {
      "type": "object",
      "properties": {
        "status": {"type": "integer", "minimum": 100, "maximum": 599},
        "statusMessage": {"type": "string"},
        "body": {"type": "string"},
        "bodyFileName": {"type": "string"},
        "headers": {"type": "object"},
        "fixedDelayMilliseconds": {"type": "integer", "minimum": 0},
        "transformers": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

var mappingSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("mapping.json", strings.NewReader(mappingSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add mapping schema: %w", err)
	}
	return compiler.Compile("mapping.json")
})

// describeValidation flattens the innermost causes into one line.
func describeValidation(err *jsonschema.ValidationError) string {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return loc + ": " + err.Message
	}
	parts := make([]string, 0, len(err.Causes))
	for _, cause := range err.Causes {
		parts = append(parts, describeValidation(cause))
	}
	return strings.Join(parts, "; ")
}

func decodeObject(mapping json.RawMessage) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(mapping, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: mapping is not an object", ErrInvalidMapping)
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
