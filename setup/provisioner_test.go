package setup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/internal/metrics"
	"github.com/BaSui01/bulkflow/transport"
	"github.com/BaSui01/bulkflow/types"
)

type fakeCluster struct {
	mu       sync.Mutex
	requests []string
	existing map[string]bool
	failPut  string
}

func (c *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	c.requests = append(c.requests, key)

	switch {
	case r.Method == http.MethodPut && r.URL.Path == c.failPut:
		w.WriteHeader(http.StatusBadRequest)
	case r.Method == http.MethodHead || r.Method == http.MethodGet:
		if c.existing[r.URL.Path] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	}
}

func (c *fakeCluster) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.requests...)
}

func newTestProvisioner(t *testing.T, srv *httptest.Server, cfg Config) *Provisioner {
	t.Helper()

	tcfg := transport.DefaultConfig()
	tcfg.ServerList = []string{srv.URL}
	client, err := transport.NewClient(tcfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, client.Start())
	t.Cleanup(client.Stop)

	m := metrics.NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
	p, err := NewProvisioner(cfg, NewSyncStepProcessor(client, m, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	return p
}

func fullConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.ILMPolicies = []Resource{{Name: "hot-warm", Body: `{"policy":{"phases":{}}}`}}
	cfg.ComponentTemplates = []Resource{{Name: "mappings", Body: `{"template":{}}`}}
	cfg.IndexTemplates = []Resource{{Name: "logs", Body: `{"index_patterns":["logs-*"]}`}}
	cfg.BootstrapAliases = []string{"logs"}
	cfg.DataStreams = []string{"metrics"}
	return cfg
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func TestProvisioner_RunsStagesInOrder(t *testing.T) {
	cluster := &fakeCluster{existing: map[string]bool{"/_data_stream/metrics": true}}
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	p := newTestProvisioner(t, srv, fullConfig())
	require.NoError(t, p.Run(context.Background()))

	reqs := cluster.Requests()
	assert.Len(t, reqs, 6)
	for _, want := range []string{
		"PUT /_ilm/policy/hot-warm",
		"PUT /_component_template/mappings",
		"PUT /_index_template/logs",
		"HEAD /logs",
		"PUT /logs-000001",
		"GET /_data_stream/metrics",
	} {
		assert.Contains(t, reqs, want)
	}
	assert.NotContains(t, reqs, "PUT /_data_stream/metrics", "existing data stream is skipped")

	tmpl := indexOf(reqs, "PUT /_index_template/logs")
	assert.Greater(t, tmpl, indexOf(reqs, "PUT /_component_template/mappings"))
	assert.Greater(t, tmpl, indexOf(reqs, "PUT /_ilm/policy/hot-warm"))
	assert.Greater(t, indexOf(reqs, "HEAD /logs"), tmpl)
}

func TestProvisioner_FailureStopsLaterStages(t *testing.T) {
	cluster := &fakeCluster{failPut: "/_component_template/mappings"}
	srv := httptest.NewServer(cluster)
	defer srv.Close()

	p := newTestProvisioner(t, srv, fullConfig())
	err := p.Run(context.Background())

	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrSetupStep))
	assert.Contains(t, err.Error(), "component-template:mappings")
	assert.NotContains(t, cluster.Requests(), "PUT /_index_template/logs")
}

func TestProvisioner_Stages(t *testing.T) {
	p, err := NewProvisioner(fullConfig(), newProcessor(newFakeExecutor(nil)), nil)
	require.NoError(t, err)

	stages := p.Stages()
	require.Len(t, stages, 3)
	assert.Len(t, stages[0], 2)
	assert.Len(t, stages[1], 1)
	assert.Len(t, stages[2], 2)

	empty, err := NewProvisioner(DefaultConfig(), newProcessor(newFakeExecutor(nil)), nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Stages())
	assert.NoError(t, empty.Run(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IndexTemplates = []Resource{{Name: "logs", Body: "{not json"}}
	assert.True(t, types.IsConfigurationError(cfg.Validate()))

	cfg = DefaultConfig()
	cfg.ILMPolicies = []Resource{{Body: "{}"}}
	assert.True(t, types.IsConfigurationError(cfg.Validate()))

	assert.True(t, DefaultConfig().IsEmpty())
	assert.False(t, fullConfig().IsEmpty())

	_, err := NewProvisioner(DefaultConfig(), nil, nil)
	assert.True(t, types.IsConfigurationError(err))
}
