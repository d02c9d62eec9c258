// Package stub defines the records the synchronization engine works on:
// projects, the WireMock instances they target, and the stubs that get
// mirrored onto those instances.
package stub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Project groups instances and stubs.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Instance is one remote WireMock process addressed by its base URL.
type Instance struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stub is a locally stored mapping definition.
//
// Version starts at 1 and is bumped by the store exactly once for every
// change of Mapping. Name, Description and Active are metadata and never
// move it.
type Stub struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Mapping     json.RawMessage `json:"mapping"`
	Active      bool            `json:"isActive"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Ref returns the remote reference embedded in the stub's mapping.
func (s *Stub) Ref() RemoteRef {
	return ExtractRef(s.Mapping)
}

// Clone returns a deep copy of s.
func (s *Stub) Clone() *Stub {
	if s == nil {
		return nil
	}
	c := *s
	if s.Mapping != nil {
		c.Mapping = append(json.RawMessage(nil), s.Mapping...)
	}
	return &c
}

// Validation errors.
var (
	ErrNameRequired    = errors.New("name is required")
	ErrProjectRequired = errors.New("project id is required")
	ErrInvalidURL      = errors.New("url must be an absolute http(s) url")
)

// Validate checks a project before it is stored.
func (p *Project) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	return nil
}

// Validate checks an instance before it is stored.
func (i *Instance) Validate() error {
	if i.ProjectID == "" {
		return ErrProjectRequired
	}
	if i.Name == "" {
		return ErrNameRequired
	}
	return ValidateBaseURL(i.URL)
}

// Validate checks a stub before it is stored.
func (s *Stub) Validate() error {
	if s.ProjectID == "" {
		return ErrProjectRequired
	}
	return ValidateMapping(s.Mapping)
}

// ValidateBaseURL reports whether raw is an absolute http or https URL with a host.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}
