package setup

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/testutil"
	"github.com/BaSui01/bulkflow/transport"
)

type sentRequest struct {
	method string
	uri    string
	body   string
}

// fakeExecutor answers requests with canned status codes; code 0 simulates
// a transport failure.
type fakeExecutor struct {
	mu     sync.Mutex
	status map[string]int
	sent   []sentRequest
	err    error
}

func newFakeExecutor(status map[string]int) *fakeExecutor {
	return &fakeExecutor{status: status}
}

func (f *fakeExecutor) Execute(ctx context.Context, req transport.Request, _ transport.ResponseDecoder, h *transport.BlockingHandler) (transport.Response, error) {
	if f.err != nil {
		return nil, f.err
	}

	var body string
	if r, _ := req.Serialize(); r != nil {
		b, _ := io.ReadAll(r)
		body = string(b)
	}

	f.mu.Lock()
	f.sent = append(f.sent, sentRequest{method: req.HTTPMethod(), uri: req.URI(), body: body})
	code := f.status[req.HTTPMethod()+" "+req.URI()]
	f.mu.Unlock()

	if code == 0 {
		h.Failed(errors.New("connection refused"))
	} else {
		h.Completed(transport.NewBasicResponse(code, http.StatusText(code)))
	}
	return h.Result(ctx)
}

func (f *fakeExecutor) Sent() []sentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentRequest(nil), f.sent...)
}

func newProcessor(exec Executor) *SyncStepProcessor {
	return NewSyncStepProcessor(exec, nil, zap.NewNop())
}

// =============================================================================
// 🧪 Chain 测试
// =============================================================================

func TestChain_AllStepsSucceed(t *testing.T) {
	exec := newFakeExecutor(map[string]int{
		"HEAD logs":       404,
		"PUT logs-000001": 200,
	})

	result := BootstrapIndexChain(newProcessor(exec), "logs", zap.NewNop()).Execute(context.Background())

	assert.Equal(t, Success, result)
	sent := exec.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sentRequest{method: http.MethodHead, uri: "logs"}, sent[0])
	assert.Equal(t, http.MethodPut, sent[1].method)
	assert.Equal(t, "logs-000001", sent[1].uri)
	assert.JSONEq(t, `{"aliases":{"logs":{"is_write_index":true}}}`, sent[1].body)
}

func TestChain_FailureStopsChain(t *testing.T) {
	exec := newFakeExecutor(map[string]int{
		"PUT logs-000001": 200,
	})

	result := BootstrapIndexChain(newProcessor(exec), "logs", nil).Execute(context.Background())

	assert.Equal(t, Failure, result)
	require.Len(t, exec.Sent(), 1, "second step must not be sent")
}

func TestChain_VetoPassesResultThrough(t *testing.T) {
	exec := newFakeExecutor(map[string]int{"HEAD logs": 200})

	result := BootstrapIndexChain(newProcessor(exec), "logs", nil).Execute(context.Background())

	assert.Equal(t, Skip, result)
	assert.Len(t, exec.Sent(), 1)
}

func TestChain_UnexpectedStatusFails(t *testing.T) {
	exec := newFakeExecutor(map[string]int{"GET _data_stream/metrics": 500})

	result := DataStreamChain(newProcessor(exec), "metrics", nil).Execute(context.Background())

	assert.Equal(t, Failure, result)
	assert.Len(t, exec.Sent(), 1)
}

func TestChain_DataStreamCreated(t *testing.T) {
	exec := newFakeExecutor(map[string]int{
		"GET _data_stream/metrics": 404,
		"PUT _data_stream/metrics": 200,
	})

	assert.Equal(t, Success, DataStreamChain(newProcessor(exec), "metrics", nil).Execute(context.Background()))
	assert.Len(t, exec.Sent(), 2)
}

func TestChain_EmptyChainSucceeds(t *testing.T) {
	assert.Equal(t, Success, NewChain("empty", newProcessor(newFakeExecutor(nil)), nil).Execute(context.Background()))
}

func TestChain_CancelledContext(t *testing.T) {
	exec := newFakeExecutor(map[string]int{"HEAD logs": 404})
	assert.Equal(t, Failure, BootstrapIndexChain(newProcessor(exec), "logs", nil).Execute(testutil.CancelledContext()))
	assert.Empty(t, exec.Sent())
}

func TestSyncStepProcessor_InterruptedIsFailure(t *testing.T) {
	exec := &fakeExecutor{err: context.Canceled}

	assert.Equal(t, Failure, newProcessor(exec).Process(context.Background(), CheckResourceExists{Resource: "logs"}))
}

// =============================================================================
// 🧪 Step 测试
// =============================================================================

func TestSteps_Requests(t *testing.T) {
	body := []byte(`{"policy":{}}`)
	tests := []struct {
		step   Step
		method string
		uri    string
	}{
		{CheckResourceExists{Resource: "logs"}, http.MethodHead, "logs"},
		{CreateBootstrapIndex{Alias: "logs"}, http.MethodPut, "logs-000001"},
		{PutILMPolicy{PolicyName: "hot-warm", Body: body}, http.MethodPut, "_ilm/policy/hot-warm"},
		{PutComponentTemplate{TemplateName: "mappings", Body: body}, http.MethodPut, "_component_template/mappings"},
		{PutIndexTemplate{TemplateName: "logs", Body: body}, http.MethodPut, "_index_template/logs"},
		{CheckDataStream{DataStream: "metrics"}, http.MethodGet, "_data_stream/metrics"},
		{CreateDataStream{DataStream: "metrics"}, http.MethodPut, "_data_stream/metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.step.Name(), func(t *testing.T) {
			req := tt.step.CreateRequest()
			assert.Equal(t, tt.method, req.HTTPMethod())
			assert.Equal(t, tt.uri, req.URI())
		})
	}
}

func TestSteps_ResponseInterpretation(t *testing.T) {
	resp := func(code int) transport.Response { return transport.NewBasicResponse(code, "") }

	check := CheckResourceExists{Resource: "logs"}
	assert.Equal(t, Success, check.OnResponse(resp(404)))
	assert.Equal(t, Skip, check.OnResponse(resp(200)))
	assert.Equal(t, Failure, check.OnResponse(resp(0)))
	assert.Equal(t, Failure, check.OnResponse(resp(403)))

	put := PutIndexTemplate{TemplateName: "logs"}
	assert.Equal(t, Success, put.OnResponse(resp(200)))
	assert.Equal(t, Failure, put.OnResponse(resp(201)))
	assert.Equal(t, Failure, put.OnResponse(resp(400)))
}

func TestSteps_ShouldProcess(t *testing.T) {
	assert.True(t, CheckResourceExists{}.ShouldProcess(Skip))
	assert.True(t, PutILMPolicy{}.ShouldProcess(Failure))

	assert.True(t, CreateBootstrapIndex{}.ShouldProcess(Success))
	assert.False(t, CreateBootstrapIndex{}.ShouldProcess(Skip))
	assert.False(t, CreateDataStream{}.ShouldProcess(Failure))
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "SUCCESS", Success.String())
	assert.Equal(t, "SKIP", Skip.String())
	assert.Equal(t, "FAILURE", Failure.String())
	assert.Equal(t, "Result(9)", Result(9).String())
}
