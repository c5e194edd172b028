// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/bulkflow/backoff"
	"github.com/BaSui01/bulkflow/failover"
	"github.com/BaSui01/bulkflow/setup"
	"github.com/BaSui01/bulkflow/transport"
	"github.com/BaSui01/bulkflow/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bulkflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Destination.ServerList = []string{"http://localhost:9200"}
	return cfg
}

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Empty(t, cfg.Destination.ServerList)
	assert.Equal(t, "mixed", cfg.Destination.Mode)
	assert.Equal(t, "index", cfg.Destination.Action)
	assert.Equal(t, 4, cfg.Destination.IOThreadCount)
	assert.Equal(t, 5, cfg.Destination.ServerPoolRetries)

	assert.Equal(t, 1000, cfg.Batch.MaxBatchSize)
	assert.Equal(t, time.Second, cfg.Batch.DeliveryInterval)

	assert.Equal(t, backoff.KindBatchLimit, cfg.Backoff.Kind)
	assert.Equal(t, failover.KindNone, cfg.Failover.Kind)
	assert.Equal(t, []string{transport.PolicyServerList, transport.PolicySecurity}, cfg.Setup.ReusePolicies)
	assert.False(t, cfg.Setup.Enabled)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "bulkflow", cfg.Metrics.Namespace)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Telemetry.MetricsInterval)
}

func TestBatchConfig_Emitter(t *testing.T) {
	b := BatchConfig{MaxBatchSize: 10, DeliveryInterval: time.Minute, QueueSize: 20}
	e := b.Emitter()

	assert.Equal(t, 10, e.MaxBatchSize)
	assert.Equal(t, time.Minute, e.DeliveryInterval)
	assert.Equal(t, 20, e.QueueSize)
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, DefaultConfig().Batch, cfg.Batch)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, "mixed", cfg.Destination.Mode)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
destination:
  server_list:
    - http://es-1:9200
    - http://es-2:9200
  read_timeout: 30s
  mode: index-per-batch
  index: logs
  filter_path: took,errors,items.*.error
  security:
    username: elastic
    password: changeme

batch:
  max_batch_size: 500
  delivery_interval: 250ms

backoff:
  kind: breaker
  failure_threshold: 3
  reset_timeout: 10s

failover:
  kind: redis
  redis:
    addr: redis:6379
    key: failed-docs

setup:
  enabled: true
  index_templates:
    - name: logs
      body: '{"index_patterns":["logs-*"]}'
  bootstrap_aliases: [logs]
  reuse_policies: [reuse-source]

log:
  level: debug
  format: console
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://es-1:9200", "http://es-2:9200"}, cfg.Destination.ServerList)
	assert.Equal(t, 30*time.Second, cfg.Destination.ReadTimeout)
	// 未出现在 YAML 中的字段保持默认值
	assert.Equal(t, time.Second, cfg.Destination.ConnectTimeout)
	assert.Equal(t, "index-per-batch", cfg.Destination.Mode)
	assert.Equal(t, "logs", cfg.Destination.Index)
	assert.Equal(t, "took,errors,items.*.error", cfg.Destination.FilterPath)
	require.NotNil(t, cfg.Destination.Security)
	assert.Equal(t, "elastic", cfg.Destination.Security.Username)

	assert.Equal(t, 500, cfg.Batch.MaxBatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.DeliveryInterval)
	assert.Equal(t, 10000, cfg.Batch.QueueSize)

	assert.Equal(t, backoff.KindBreaker, cfg.Backoff.Kind)
	assert.Equal(t, 3, cfg.Backoff.FailureThreshold)
	assert.Equal(t, 10*time.Second, cfg.Backoff.ResetTimeout)

	assert.Equal(t, failover.KindRedis, cfg.Failover.Kind)
	assert.Equal(t, "redis:6379", cfg.Failover.Redis.Addr)
	assert.Equal(t, "failed-docs", cfg.Failover.Redis.Key)

	assert.True(t, cfg.Setup.Enabled)
	require.Len(t, cfg.Setup.IndexTemplates, 1)
	assert.Equal(t, "logs", cfg.Setup.IndexTemplates[0].Name)
	assert.Equal(t, []string{"logs"}, cfg.Setup.BootstrapAliases)
	assert.Equal(t, []string{transport.PolicyReuseSource}, cfg.Setup.ReusePolicies)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "destination: [unclosed")

	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config from file")
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("BULKFLOW_DESTINATION_SERVER_LIST", "http://a:9200, http://b:9200,")
	t.Setenv("BULKFLOW_DESTINATION_READ_TIMEOUT", "3s")
	t.Setenv("BULKFLOW_DESTINATION_INDEX", "events")
	t.Setenv("BULKFLOW_BATCH_MAX_BATCH_SIZE", "42")
	t.Setenv("BULKFLOW_BACKOFF_KIND", "rate-limit")
	t.Setenv("BULKFLOW_BACKOFF_BATCHES_PER_SECOND", "2.5")
	t.Setenv("BULKFLOW_FAILOVER_REDIS_ADDR", "env-redis:6379")
	t.Setenv("BULKFLOW_SETUP_ENABLED", "true")
	t.Setenv("BULKFLOW_SETUP_TRANSPORT_SERVER_LIST", "http://setup:9200")
	t.Setenv("BULKFLOW_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://a:9200", "http://b:9200"}, cfg.Destination.ServerList)
	assert.Equal(t, 3*time.Second, cfg.Destination.ReadTimeout)
	assert.Equal(t, "events", cfg.Destination.Index)
	assert.Equal(t, 42, cfg.Batch.MaxBatchSize)
	assert.Equal(t, backoff.KindRateLimit, cfg.Backoff.Kind)
	assert.Equal(t, 2.5, cfg.Backoff.BatchesPerSecond)
	assert.Equal(t, "env-redis:6379", cfg.Failover.Redis.Addr)
	assert.True(t, cfg.Setup.Enabled)
	assert.Equal(t, []string{"http://setup:9200"}, cfg.Setup.Transport.ServerList)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
destination:
  index: yaml-index
  type: yaml-type
`)
	t.Setenv("BULKFLOW_DESTINATION_INDEX", "env-index")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "env-index", cfg.Destination.Index)
	assert.Equal(t, "yaml-type", cfg.Destination.Type)
}

func TestLoader_EnvSecurityPointer(t *testing.T) {
	t.Run("unset leaves security nil", func(t *testing.T) {
		cfg, err := NewLoader().Load()
		require.NoError(t, err)
		assert.Nil(t, cfg.Destination.Security)
	})

	t.Run("any field allocates security", func(t *testing.T) {
		t.Setenv("BULKFLOW_DESTINATION_SECURITY_USERNAME", "svc")
		t.Setenv("BULKFLOW_DESTINATION_SECURITY_INSECURE_SKIP_VERIFY", "true")

		cfg, err := NewLoader().Load()
		require.NoError(t, err)
		require.NotNil(t, cfg.Destination.Security)
		assert.Equal(t, "svc", cfg.Destination.Security.Username)
		assert.True(t, cfg.Destination.Security.InsecureSkipVerify)
	})

	t.Run("env merges into YAML security", func(t *testing.T) {
		path := writeConfig(t, `
destination:
  security:
    username: from-yaml
`)
		t.Setenv("BULKFLOW_DESTINATION_SECURITY_PASSWORD", "from-env")

		cfg, err := NewLoader().WithConfigPath(path).Load()
		require.NoError(t, err)
		require.NotNil(t, cfg.Destination.Security)
		assert.Equal(t, "from-yaml", cfg.Destination.Security.Username)
		assert.Equal(t, "from-env", cfg.Destination.Security.Password)
	})
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_DESTINATION_INDEX", "custom")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Destination.Index)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"BULKFLOW_BATCH_MAX_BATCH_SIZE", "many"},
		{"BULKFLOW_BATCH_DELIVERY_INTERVAL", "soon"},
		{"BULKFLOW_METRICS_ENABLED", "maybe"},
		{"BULKFLOW_TELEMETRY_SAMPLE_RATE", "half"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := NewLoader().Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoader_Validators(t *testing.T) {
	t.Run("validate rejects missing servers", func(t *testing.T) {
		_, err := NewLoader().WithValidator((*Config).Validate).Load()
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ErrConfiguration))
		assert.Contains(t, err.Error(), "server_list")
	})

	t.Run("validators run in order", func(t *testing.T) {
		t.Setenv("BULKFLOW_DESTINATION_SERVER_LIST", "http://localhost:9200")
		var order []int
		_, err := NewLoader().
			WithValidator(func(*Config) error { order = append(order, 1); return nil }).
			WithValidator((*Config).Validate).
			WithValidator(func(*Config) error { order = append(order, 2); return nil }).
			Load()
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, order)
	})
}

func TestMustLoad_Panics(t *testing.T) {
	path := writeConfig(t, "batch: {max_batch_size: [1]}")
	assert.Panics(t, func() { MustLoad(path) })
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no servers", func(c *Config) { c.Destination.ServerList = nil }, "server_list"},
		{"bad io threads", func(c *Config) { c.Destination.IOThreadCount = 0 }, "io_thread_count"},
		{"bad mode", func(c *Config) { c.Destination.Mode = "sharded" }, "unknown bulk mode"},
		{"bad action", func(c *Config) { c.Destination.Action = "upsert" }, "unknown bulk action"},
		{"zero batch size", func(c *Config) { c.Batch.MaxBatchSize = 0 }, "max_batch_size"},
		{"zero interval", func(c *Config) { c.Batch.DeliveryInterval = 0 }, "delivery_interval"},
		{"zero queue", func(c *Config) { c.Batch.QueueSize = 0 }, "queue_size"},
		{"bad backoff", func(c *Config) { c.Backoff.Kind = "jitter" }, "jitter"},
		{"bad failover", func(c *Config) { c.Failover.Kind = "kafka" }, "kafka"},
		{"bad setup body", func(c *Config) {
			c.Setup.IndexTemplates = append(c.Setup.IndexTemplates, setup.Resource{Name: "t", Body: "{"})
		}, "invalid JSON body"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "invalid log format"},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
		{"zero metrics interval", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.MetricsInterval = 0
		}, "metrics_interval"},
		{"metrics interval ignored when disabled", func(c *Config) { c.Telemetry.MetricsInterval = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
