package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/types"
)

type recordingHandler struct {
	completed []Response
	failed    []error
}

func (h *recordingHandler) Completed(resp Response) { h.completed = append(h.completed, resp) }
func (h *recordingHandler) Failed(err error)        { h.failed = append(h.failed, err) }

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func newHTTPResponse(status int, body string) (*http.Response, *trackingBody) {
	tb := &trackingBody{Reader: strings.NewReader(body)}
	return &http.Response{StatusCode: status, Body: tb, ContentLength: int64(len(body))}, tb
}

type failingDecoder struct{ err error }

func (d failingDecoder) Decode(io.Reader) (Response, error) { return nil, d.err }
func (d failingDecoder) Empty() Response                    { return BasicResponse{} }

type panickingDecoder struct{}

func (panickingDecoder) Decode(io.Reader) (Response, error) { panic("corrupt") }
func (panickingDecoder) Empty() Response                    { return BasicResponse{} }

func TestCallback_OverlaysStatus(t *testing.T) {
	h := &recordingHandler{}
	resp, body := newHTTPResponse(http.StatusCreated, `{"acknowledged":true}`)

	newCallback(h, BasicDecoder{}, zap.NewNop()).completed(resp, true)

	require.Len(t, h.completed, 1)
	assert.Empty(t, h.failed)
	assert.Equal(t, http.StatusCreated, h.completed[0].ResponseCode())
	assert.Equal(t, "Created", h.completed[0].ErrorMessage())
	assert.True(t, h.completed[0].Succeeded())
	assert.True(t, body.closed)
}

func TestCallback_NoBodyUsesEmpty(t *testing.T) {
	h := &recordingHandler{}
	resp, body := newHTTPResponse(http.StatusNotFound, "")

	newCallback(h, failingDecoder{err: errors.New("must not decode")}, zap.NewNop()).completed(resp, false)

	require.Len(t, h.completed, 1)
	assert.Equal(t, http.StatusNotFound, h.completed[0].ResponseCode())
	assert.False(t, h.completed[0].Succeeded())
	assert.True(t, body.closed)
}

func TestCallback_DecodeErrorRoutesToFailed(t *testing.T) {
	h := &recordingHandler{}
	resp, body := newHTTPResponse(http.StatusOK, "garbage")

	cb := newCallback(h, failingDecoder{err: errors.New("bad json")}, zap.NewNop())
	cb.completed(resp, true)
	cb.failed(errors.New("second"))

	assert.Empty(t, h.completed)
	require.Len(t, h.failed, 1)
	assert.True(t, types.IsErrorCode(h.failed[0], types.ErrProtocol))
	assert.True(t, body.closed)
}

func TestCallback_DecoderPanicRoutesToFailed(t *testing.T) {
	h := &recordingHandler{}
	resp, body := newHTTPResponse(http.StatusOK, "{}")

	newCallback(h, panickingDecoder{}, zap.NewNop()).completed(resp, true)

	require.Len(t, h.failed, 1)
	assert.Contains(t, h.failed[0].Error(), "decoder panicked")
	assert.True(t, body.closed)
}

func TestCallback_FailedOnlyOnce(t *testing.T) {
	h := &recordingHandler{}
	cb := newCallback(h, BasicDecoder{}, zap.NewNop())

	cb.failed(errors.New("first"))
	cb.failed(errors.New("second"))

	require.Len(t, h.failed, 1)
	assert.EqualError(t, h.failed[0], "first")
}

func TestHandlerFuncs_NilFuncsAreIgnored(t *testing.T) {
	assert.NotPanics(t, func() {
		HandlerFuncs{}.Completed(BasicResponse{})
		HandlerFuncs{}.Failed(errors.New("x"))
	})
}

// =============================================================================
// 🧪 BlockingHandler 测试
// =============================================================================

func TestBlockingHandler_Completed(t *testing.T) {
	h := NewBlockingHandler(nil)

	go h.Completed(NewBasicResponse(200, "OK"))

	resp, err := h.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, resp.ResponseCode())
}

func TestBlockingHandler_FailedUsesFallback(t *testing.T) {
	h := NewBlockingHandler(nil)
	h.Failed(errors.New("connection refused"))
	h.Completed(NewBasicResponse(200, "OK"))

	resp, err := h.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ResponseCode())
	assert.False(t, resp.Succeeded())
	assert.Equal(t, "connection refused", resp.ErrorMessage())
}

func TestBlockingHandler_CustomFallback(t *testing.T) {
	h := NewBlockingHandler(func(err error) Response {
		return NewBasicResponse(599, "mapped: "+err.Error())
	})
	h.Failed(errors.New("x"))

	resp, err := h.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 599, resp.ResponseCode())
	assert.Equal(t, "mapped: x", resp.ErrorMessage())
}

func TestBlockingHandler_ContextCancelled(t *testing.T) {
	h := NewBlockingHandler(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	resp, err := h.Result(ctx)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	h.Completed(NewBasicResponse(204, ""))
	resp, err = h.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 204, resp.ResponseCode())
	select {
	case <-h.Done():
	default:
		t.Fatal("done channel must be closed")
	}
}

func TestBasicResponse_WithIsCopy(t *testing.T) {
	base := NewBasicResponse(200, "OK")
	changed := base.WithResponseCode(500).WithErrorMessage("boom")

	assert.Equal(t, 200, base.ResponseCode())
	assert.Equal(t, "OK", base.ErrorMessage())
	assert.Equal(t, 500, changed.ResponseCode())
	assert.False(t, changed.Succeeded())
}
