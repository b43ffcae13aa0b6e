// Package apiclient talks to the SUMATIN REST backend on behalf of one
// portal session: it attaches the session's access token, refreshes it
// transparently on 401 and normalizes every response into an Envelope.
package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const contentTypeJSON = "application/json"

// Request is a replayable description of one backend call. Bodies are held
// as bytes so the same Request can be sent again after a token refresh.
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	Header      http.Header
	// Anonymous sends the request without the session's token, so a 401
	// (bad credentials on login, for instance) is final and never refreshes.
	Anonymous bool
}

// NewRequest builds a bodiless request.
func NewRequest(method, path string, query url.Values) *Request {
	return &Request{Method: method, Path: path, Query: query}
}

// NewJSONRequest builds a request whose body is v encoded as JSON. A nil v
// sends an empty JSON object, matching what the backend expects for
// action endpoints such as logout.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	if v == nil {
		v = struct{}{}
	}
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s %s body: %w", method, path, err)
	}
	return &Request{
		Method:      method,
		Path:        path,
		Body:        body,
		ContentType: contentTypeJSON,
	}, nil
}

// RawResponse is a fully read backend response.
type RawResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// IsJSON reports whether the backend labelled the body as JSON.
func (r *RawResponse) IsJSON() bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), contentTypeJSON)
}
