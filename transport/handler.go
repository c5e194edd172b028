package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/types"
)

// ResponseHandler receives the outcome of one request. Exactly one of the two
// methods is called, exactly once, possibly on an I/O goroutine.
type ResponseHandler interface {
	Completed(resp Response)
	Failed(err error)
}

// HandlerFuncs adapts two functions to ResponseHandler.
type HandlerFuncs struct {
	OnCompleted func(Response)
	OnFailed    func(error)
}

// Completed implements ResponseHandler.
func (h HandlerFuncs) Completed(resp Response) {
	if h.OnCompleted != nil {
		h.OnCompleted(resp)
	}
}

// Failed implements ResponseHandler.
func (h HandlerFuncs) Failed(err error) {
	if h.OnFailed != nil {
		h.OnFailed(err)
	}
}

// callback bridges an http exchange to a ResponseHandler.
type callback struct {
	handler ResponseHandler
	decoder ResponseDecoder
	logger  *zap.Logger
	once    sync.Once
}

func newCallback(handler ResponseHandler, decoder ResponseDecoder, logger *zap.Logger) *callback {
	return &callback{handler: handler, decoder: decoder, logger: logger}
}

// completed decodes the body and overlays the transport status on the
// result. The body is closed on every path; a decode failure is routed to
// failed instead.
func (cb *callback) completed(resp *http.Response, hasBody bool) {
	result, err := cb.decode(resp, hasBody)
	cb.closeBody(resp)

	if err != nil {
		cb.failed(types.NewProtocolError(resp.StatusCode, "failed to decode response").WithCause(err))
		return
	}

	result = result.
		WithResponseCode(resp.StatusCode).
		WithErrorMessage(http.StatusText(resp.StatusCode))

	cb.once.Do(func() {
		cb.handler.Completed(result)
	})
}

func (cb *callback) failed(err error) {
	cb.once.Do(func() {
		cb.handler.Failed(err)
	})
}

func (cb *callback) decode(resp *http.Response, hasBody bool) (result Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panicked: %v", r)
		}
	}()

	if !hasBody || resp.Body == nil || resp.ContentLength == 0 {
		return cb.decoder.Empty(), nil
	}

	result, err = cb.decoder.Decode(resp.Body)
	if errors.Is(err, io.EOF) || (err == nil && result == nil) {
		return cb.decoder.Empty(), nil
	}
	return result, err
}

func (cb *callback) closeBody(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	if err := resp.Body.Close(); err != nil {
		cb.logger.Warn("failed to close response body", zap.Error(err))
	}
}
