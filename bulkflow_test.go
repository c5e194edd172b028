package bulkflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/bulkflow/backoff"
	"github.com/BaSui01/bulkflow/bulk"
	"github.com/BaSui01/bulkflow/config"
	"github.com/BaSui01/bulkflow/delivery"
	"github.com/BaSui01/bulkflow/failover"
	"github.com/BaSui01/bulkflow/setup"
	"github.com/BaSui01/bulkflow/testutil"
	"github.com/BaSui01/bulkflow/testutil/fixtures"
	"github.com/BaSui01/bulkflow/testutil/mocks"
	"github.com/BaSui01/bulkflow/types"
)

func testConfig(servers ...string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Destination.ServerList = servers
	cfg.Destination.Index = "logs"
	cfg.Batch.MaxBatchSize = 5
	cfg.Batch.DeliveryInterval = 50 * time.Millisecond
	cfg.Backoff = backoff.Config{Kind: backoff.KindNone}
	return cfg
}

// recorder 收集交给故障转移的条目
type recorder struct {
	mu    sync.Mutex
	items []failover.FailedItem
}

func (r *recorder) Deliver(_ context.Context, item failover.FailedItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, item)
	return nil
}

func (r *recorder) snapshot() []failover.FailedItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]failover.FailedItem(nil), r.items...)
}

type alwaysBackoff struct{}

func (alwaysBackoff) ShouldApply(*bulk.Batch) bool { return true }
func (alwaysBackoff) Register(*bulk.Batch)         {}
func (alwaysBackoff) Deregister(*bulk.Batch)       {}

func addDocuments(t *testing.T, p *Pipeline, docs []string) {
	t.Helper()
	ctx := testutil.TestContext(t)
	for _, doc := range docs {
		require.NoError(t, p.AddDocument(ctx, "", "", []byte(doc)))
	}
}

func TestPipeline_DeliversAllDocuments(t *testing.T) {
	cluster := mocks.NewMockCluster(t)
	rec := &recorder{}

	p, err := New(testutil.TestContext(t), testConfig(cluster.URL()), WithFailoverPolicy(rec))
	require.NoError(t, err)

	docs := fixtures.Documents(12)
	addDocuments(t, p, docs)
	require.NoError(t, p.Close(context.Background()))

	got := cluster.Documents()
	sort.Strings(got)
	want := append([]string(nil), docs...)
	sort.Strings(want)
	assert.Equal(t, want, got)

	requests := cluster.BulkRequests()
	require.Len(t, requests, 3)
	for _, r := range requests {
		assert.Equal(t, "/_bulk", r.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}
	assert.Empty(t, rec.snapshot())

	stats := p.Stats()
	assert.Equal(t, int64(12), stats.Emitter.Submitted)
	assert.Equal(t, int64(3), stats.Emitter.Accepted)
	assert.Equal(t, int64(0), stats.Buffers.Outstanding())
}

func TestPipeline_IndexPerBatchUsesTargetURI(t *testing.T) {
	cluster := mocks.NewMockCluster(t)
	cfg := testConfig(cluster.URL())
	cfg.Destination.Mode = "index-per-batch"
	cfg.Destination.FilterPath = "errors,items.*.error"

	p, err := New(testutil.TestContext(t), cfg)
	require.NoError(t, err)

	addDocuments(t, p, fixtures.Documents(3))
	require.NoError(t, p.Close(context.Background()))

	requests := cluster.BulkRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/logs/_bulk", requests[0].Path)
	assert.Equal(t, "filter_path=errors%2Citems.%2A.error", requests[0].RawQuery)
	testutil.AssertNDJSON(t, requests[0].Body, 6)
}

func TestPipeline_ItemFailureFailsOverWholeBatch(t *testing.T) {
	cluster := mocks.NewMockCluster(t).WithItemStatus(func(_ int, source string) int {
		if strings.Contains(source, "doc-1\"") {
			return http.StatusBadRequest
		}
		return http.StatusCreated
	})
	rec := &recorder{}
	cfg := testConfig(cluster.URL())
	cfg.Batch.MaxBatchSize = 3

	p, err := New(testutil.TestContext(t), cfg, WithFailoverPolicy(rec))
	require.NoError(t, err)

	addDocuments(t, p, fixtures.Documents(3))
	require.NoError(t, p.Close(context.Background()))

	items := rec.snapshot()
	require.Len(t, items, 3)
	for _, item := range items {
		assert.Equal(t, "logs", item.Index)
		assert.Contains(t, item.Reason, "One or more items failed")
		assert.Contains(t, item.Reason, "mapper_parsing_exception")
	}
}

func TestPipeline_RootErrorFailsOver(t *testing.T) {
	cluster := mocks.NewMockCluster(t).WithBulkStatus(http.StatusServiceUnavailable, "cluster is recovering")
	rec := &recorder{}

	p, err := New(testutil.TestContext(t), testConfig(cluster.URL()), WithFailoverPolicy(rec))
	require.NoError(t, err)

	addDocuments(t, p, fixtures.Documents(4))
	require.NoError(t, p.Close(context.Background()))

	items := rec.snapshot()
	require.Len(t, items, 4)
	assert.Contains(t, items[0].Reason, "cluster is recovering")
}

func TestPipeline_BackoffRejectsWithoutDispatch(t *testing.T) {
	cluster := mocks.NewMockCluster(t)
	rec := &recorder{}

	p, err := New(testutil.TestContext(t), testConfig(cluster.URL()),
		WithFailoverPolicy(rec),
		WithBackoffPolicy(alwaysBackoff{}),
	)
	require.NoError(t, err)

	addDocuments(t, p, fixtures.Documents(5))
	require.NoError(t, p.Close(context.Background()))

	assert.Empty(t, cluster.Requests())
	items := rec.snapshot()
	require.Len(t, items, 5)
	assert.Equal(t, delivery.ErrBackoffApplied.Error(), items[0].Reason)
	assert.Equal(t, int64(1), p.Stats().Emitter.Rejected)
}

func TestPipeline_RedisFailover(t *testing.T) {
	mr := miniredis.RunT(t)
	cluster := mocks.NewMockCluster(t).WithBulkStatus(http.StatusInternalServerError, "")

	cfg := testConfig(cluster.URL())
	cfg.Failover = failover.DefaultConfig()
	cfg.Failover.Kind = failover.KindRedis
	cfg.Failover.Redis.Addr = mr.Addr()

	p, err := New(testutil.TestContext(t), cfg)
	require.NoError(t, err)
	_, ok := p.Failover().(*failover.RedisPolicy)
	require.True(t, ok)

	addDocuments(t, p, fixtures.Documents(2))
	require.NoError(t, p.Close(context.Background()))

	records, err := mr.List(cfg.Failover.Redis.Key)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var first failover.FailedItem
	require.NoError(t, json.Unmarshal([]byte(records[0]), &first))
	assert.Equal(t, "logs", first.Index)
	assert.NotEmpty(t, first.BatchID)
}

func TestPipeline_Operations(t *testing.T) {
	cluster := mocks.NewMockCluster(t)
	var mu sync.Mutex
	var sizes []int

	op := delivery.OperationFunc(func(_ context.Context, batch *bulk.Batch) error {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, batch.Size())
		return nil
	})

	p, err := New(testutil.TestContext(t), testConfig(cluster.URL()), WithOperations(op))
	require.NoError(t, err)

	addDocuments(t, p, fixtures.Documents(5))
	require.NoError(t, p.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{5}, sizes)
}

func TestPipeline_ProvisionsSetupResources(t *testing.T) {
	cluster := mocks.NewMockCluster(t)

	cfg := testConfig(cluster.URL())
	cfg.Setup.Enabled = true
	cfg.Setup.IndexTemplates = []setup.Resource{{Name: "logs", Body: `{"index_patterns":["logs-*"]}`}}
	cfg.Setup.BootstrapAliases = []string{"logs"}

	p, err := New(testutil.TestContext(t), cfg)
	require.NoError(t, err)
	require.NoError(t, p.Close(context.Background()))

	assert.Equal(t, 1, cluster.Count("PUT /_index_template/logs"))
	assert.Equal(t, 1, cluster.Count("HEAD /logs"))
	assert.Equal(t, 1, cluster.Count("PUT /logs-000001"))
	assert.True(t, cluster.Exists("/logs-000001"))
}

func TestPipeline_SetupFailureAbortsConstruction(t *testing.T) {
	cluster := mocks.NewMockCluster(t)

	cfg := testConfig(cluster.URL())
	cfg.Setup.Enabled = true
	cfg.Setup.BootstrapAliases = []string{"logs"}
	cfg.Setup.ReusePolicies = []string{"ignore-source"}

	// 未复用主目标的服务器列表，初始化客户端没有可用地址
	cfg.Setup.Transport.ServerPoolRetries = 0
	_, err := New(testutil.TestContext(t), cfg)
	require.Error(t, err)
	assert.Empty(t, cluster.Requests())
}

func TestPipeline_ExposesMetrics(t *testing.T) {
	cluster := mocks.NewMockCluster(t)
	cfg := testConfig(cluster.URL())
	cfg.Metrics.ListenAddr = "127.0.0.1:0"

	p, err := New(testutil.TestContext(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	addDocuments(t, p, fixtures.Documents(5))

	scrape := func() string {
		resp, err := http.Get("http://" + p.MetricsAddr() + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}
	testutil.AssertEventuallyTrue(t, func() bool {
		body := scrape()
		return strings.Contains(body, "bulkflow_http_requests_total") &&
			strings.Contains(body, `bulkflow_batches_total{outcome="succeeded"} 1`)
	}, 5*time.Second)
}

func TestPipeline_AddAfterClose(t *testing.T) {
	cluster := mocks.NewMockCluster(t)
	p, err := New(testutil.TestContext(t), testConfig(cluster.URL()))
	require.NoError(t, err)

	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	err = p.AddDocument(context.Background(), "", "", []byte(`{}`))
	assert.ErrorIs(t, err, ErrPipelineClosed)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(context.Background(), nil)
	require.Error(t, err)

	_, err = New(context.Background(), config.DefaultConfig())
	testutil.AssertErrorCode(t, err, types.ErrConfiguration)
}
