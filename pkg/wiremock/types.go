package wiremock

import "encoding/json"

// Mapping is a stub mapping as returned by the admin API. Request and Response
// are kept raw because this package never interprets matcher semantics.
type Mapping struct {
	ID       string          `json:"id,omitempty"`
	UUID     string          `json:"uuid,omitempty"`
	Name     string          `json:"name,omitempty"`
	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Priority int             `json:"priority,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// MappingsResponse is the body of GET /__admin/mappings.
type MappingsResponse struct {
	Mappings []Mapping `json:"mappings"`
	Meta     *Meta     `json:"meta,omitempty"`
}

// Meta carries collection totals.
type Meta struct {
	Total int `json:"total"`
}

// LoggedRequest is one entry of the request journal.
type LoggedRequest struct {
	ID                 string              `json:"id"`
	Request            RequestDetails      `json:"request"`
	ResponseDefinition *ResponseDefinition `json:"responseDefinition,omitempty"`
	WasMatched         bool                `json:"wasMatched"`
	StubMapping        *Mapping            `json:"stubMapping,omitempty"`
}

// RequestDetails describes the request as received by the instance.
type RequestDetails struct {
	URL              string          `json:"url"`
	AbsoluteURL      string          `json:"absoluteUrl"`
	Method           string          `json:"method"`
	ClientIP         string          `json:"clientIp,omitempty"`
	Headers          json.RawMessage `json:"headers,omitempty"`
	Cookies          json.RawMessage `json:"cookies,omitempty"`
	Body             string          `json:"body,omitempty"`
	BodyAsBase64     string          `json:"bodyAsBase64,omitempty"`
	LoggedDate       int64           `json:"loggedDate"`
	LoggedDateString string          `json:"loggedDateString"`
}

// ResponseDefinition is the response the instance served.
type ResponseDefinition struct {
	Status  int               `json:"status"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// RequestsResponse is the body of GET /__admin/requests and
// GET /__admin/requests/unmatched.
type RequestsResponse struct {
	Requests []LoggedRequest `json:"requests"`
	Meta     *Meta           `json:"meta,omitempty"`
}
