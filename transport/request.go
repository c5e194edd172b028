package transport

import (
	"bytes"
	"io"
	"net/http"
)

// Request is the generic {method, path, optional payload} shape adapted to
// the wire by the Client.
type Request interface {
	// HTTPMethod returns the request method, e.g. "POST".
	HTTPMethod() string
	// URI returns the path relative to the server address, optionally with a
	// query string.
	URI() string
	// Serialize returns the payload, or nil when the request has no body.
	Serialize() (io.Reader, error)
}

// GenericRequest is a Request with an in-memory body.
type GenericRequest struct {
	Method string
	Path   string
	Body   []byte
}

// NewRequest creates a GenericRequest.
func NewRequest(method, path string, body []byte) *GenericRequest {
	return &GenericRequest{Method: method, Path: path, Body: body}
}

// HTTPMethod implements Request.
func (r *GenericRequest) HTTPMethod() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// URI implements Request.
func (r *GenericRequest) URI() string { return r.Path }

// Serialize implements Request.
func (r *GenericRequest) Serialize() (io.Reader, error) {
	if r.Body == nil {
		return nil, nil
	}
	return bytes.NewReader(r.Body), nil
}
