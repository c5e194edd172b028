package transport

import (
	"io"
)

// Response is the uniform result contract of every request. With* methods
// return new values and never modify the receiver.
type Response interface {
	Succeeded() bool
	ResponseCode() int
	ErrorMessage() string
	WithResponseCode(code int) Response
	WithErrorMessage(message string) Response
}

// ResponseDecoder turns a response stream into a Response. Empty provides
// the result used when the response carries no body; it must return a fresh
// value on every call.
type ResponseDecoder interface {
	Decode(r io.Reader) (Response, error)
	Empty() Response
}

// BasicResponse is a status-only Response used by provisioning requests.
type BasicResponse struct {
	code    int
	message string
}

// NewBasicResponse creates a BasicResponse.
func NewBasicResponse(code int, message string) BasicResponse {
	return BasicResponse{code: code, message: message}
}

// Succeeded reports a 2xx status.
func (r BasicResponse) Succeeded() bool { return r.code >= 200 && r.code < 300 }

// ResponseCode implements Response.
func (r BasicResponse) ResponseCode() int { return r.code }

// ErrorMessage implements Response.
func (r BasicResponse) ErrorMessage() string { return r.message }

// WithResponseCode implements Response.
func (r BasicResponse) WithResponseCode(code int) Response {
	r.code = code
	return r
}

// WithErrorMessage implements Response.
func (r BasicResponse) WithErrorMessage(message string) Response {
	r.message = message
	return r
}

// BasicDecoder drains the body and produces a BasicResponse; status and
// message come from the transport overlay.
type BasicDecoder struct{}

// Decode implements ResponseDecoder.
func (BasicDecoder) Decode(r io.Reader) (Response, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, err
	}
	return BasicResponse{}, nil
}

// Empty implements ResponseDecoder.
func (BasicDecoder) Empty() Response { return BasicResponse{} }

// FailedResponse maps a transport error to a BasicResponse with status 0.
// It is the default fallback of blocking handlers.
func FailedResponse(err error) Response {
	if err == nil {
		return BasicResponse{}
	}
	return BasicResponse{message: err.Error()}
}
