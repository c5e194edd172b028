package transport

import (
	"context"
	"sync"
)

// BlockingHandler is a single-assignment ResponseHandler for synchronous
// callers. Failures are mapped to a Response by the fallback mapper instead
// of being returned as errors.
type BlockingHandler struct {
	fallback func(error) Response
	once     sync.Once
	done     chan struct{}
	result   Response
}

// NewBlockingHandler creates a handler. A nil fallback uses FailedResponse.
func NewBlockingHandler(fallback func(error) Response) *BlockingHandler {
	if fallback == nil {
		fallback = FailedResponse
	}
	return &BlockingHandler{
		fallback: fallback,
		done:     make(chan struct{}),
	}
}

// Completed implements ResponseHandler.
func (h *BlockingHandler) Completed(resp Response) {
	h.resolve(resp)
}

// Failed implements ResponseHandler.
func (h *BlockingHandler) Failed(err error) {
	h.resolve(h.fallback(err))
}

func (h *BlockingHandler) resolve(resp Response) {
	h.once.Do(func() {
		h.result = resp
		close(h.done)
	})
}

// Result parks until the handler is resolved or ctx is done. Cancellation
// does not resolve the handler; the caller sees ctx.Err() and a later Result
// call may still observe the eventual response.
func (h *BlockingHandler) Result(ctx context.Context) (Response, error) {
	select {
	case <-h.done:
		return h.result, nil
	default:
	}

	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the handler is resolved.
func (h *BlockingHandler) Done() <-chan struct{} {
	return h.done
}
