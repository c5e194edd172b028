package bulk

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/BaSui01/bulkflow/codec"
	"github.com/BaSui01/bulkflow/transport"
)

// Error is the nested error object of a bulk response.
type Error struct {
	Type      string  `json:"type"`
	Reason    string  `json:"reason"`
	CausedBy  *Error  `json:"caused_by,omitempty"`
	RootCause []Error `json:"root_cause,omitempty"`
}

// String renders the error and its caused_by chain.
func (e *Error) String() string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(e.Type)
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if e.CausedBy != nil {
		sb.WriteString(" (caused by ")
		sb.WriteString(e.CausedBy.String())
		sb.WriteString(")")
	}
	return sb.String()
}

// ItemResult is the outcome of one item of a bulk request.
type ItemResult struct {
	Action string `json:"-"`
	ID     string `json:"_id"`
	Index  string `json:"_index"`
	Type   string `json:"_type"`
	Status int    `json:"status"`
	Error  *Error `json:"error,omitempty"`
}

type itemFields ItemResult

// UnmarshalJSON accepts both the action-keyed form
// {"index": {"_id": ...}} and the flat form {"_id": ...}.
func (r *ItemResult) UnmarshalJSON(data []byte) error {
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(data, &keyed); err != nil {
		return err
	}

	if len(keyed) == 1 {
		for action, raw := range keyed {
			raw = bytes.TrimSpace(raw)
			if strings.HasPrefix(action, "_") || action == "error" || len(raw) == 0 || raw[0] != '{' {
				break
			}
			var f itemFields
			if err := json.Unmarshal(raw, &f); err != nil {
				return err
			}
			*r = ItemResult(f)
			r.Action = action
			return nil
		}
	}

	var f itemFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = ItemResult(f)
	return nil
}

// BatchResult is the decoded bulk response. It implements transport.Response;
// With* methods return modified copies.
type BatchResult struct {
	Took   int          `json:"took"`
	Errors bool         `json:"errors"`
	Status int          `json:"status"`
	Items  []ItemResult `json:"items"`
	Error  *Error       `json:"error,omitempty"`

	responseCode int
	message      string
}

var _ transport.Response = BatchResult{}

// NoContentResult returns a fresh result for responses without a body.
// It carries an empty_response root error and therefore never succeeds.
func NoContentResult() BatchResult {
	return BatchResult{
		Error: &Error{Type: "empty_response", Reason: "response has no content"},
	}
}

// Succeeded is true iff the errors flag is unset and no root error exists.
func (r BatchResult) Succeeded() bool {
	return !r.Errors && r.Error == nil
}

// ResponseCode implements transport.Response.
func (r BatchResult) ResponseCode() int { return r.responseCode }

// WithResponseCode implements transport.Response.
func (r BatchResult) WithResponseCode(code int) transport.Response {
	r.responseCode = code
	return r
}

// WithErrorMessage implements transport.Response.
func (r BatchResult) WithErrorMessage(message string) transport.Response {
	r.message = message
	return r
}

// ErrorMessage builds a chained description: the root error first, then
// the first failed item when the errors flag is set. Without either, the
// transport status message is returned.
func (r BatchResult) ErrorMessage() string {
	var sb strings.Builder

	if r.Error != nil {
		sb.WriteString("Root error: ")
		sb.WriteString(r.Error.String())
	}

	if r.Errors {
		if sb.Len() > 0 {
			sb.WriteString(". ")
		}
		sb.WriteString("One or more items failed. ")
		if item, ok := r.FirstFailedItem(); ok {
			sb.WriteString("First error: ")
			sb.WriteString(item.Error.String())
		} else {
			sb.WriteString("Unable to extract error info from failed items")
		}
	}

	if sb.Len() == 0 {
		return r.message
	}
	return sb.String()
}

// FirstFailedItem returns the first item carrying an error object.
func (r BatchResult) FirstFailedItem() (ItemResult, bool) {
	for _, item := range r.Items {
		if item.Error != nil {
			return item, true
		}
	}
	return ItemResult{}, false
}

// ResultDecoder decodes bulk responses with a pluggable deserializer.
type ResultDecoder struct {
	Deserializer codec.Deserializer
}

// Decode implements transport.ResponseDecoder.
func (d ResultDecoder) Decode(r io.Reader) (transport.Response, error) {
	var result BatchResult
	if err := d.Deserializer.Decode(r, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Empty implements transport.ResponseDecoder.
func (ResultDecoder) Empty() transport.Response {
	return NoContentResult()
}
