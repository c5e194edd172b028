// =============================================================================
// 📦 bulkflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/bulkflow/backoff"
	"github.com/BaSui01/bulkflow/bulk"
	"github.com/BaSui01/bulkflow/failover"
	"github.com/BaSui01/bulkflow/setup"
	"github.com/BaSui01/bulkflow/transport"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Destination: DefaultDestinationConfig(),
		Batch:       DefaultBatchConfig(),
		Backoff:     backoff.DefaultConfig(),
		Failover:    failover.DefaultConfig(),
		Setup:       DefaultSetupConfig(),
		Log:         DefaultLogConfig(),
		Metrics:     DefaultMetricsConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultDestinationConfig 返回默认目标配置（不含服务器地址）
func DefaultDestinationConfig() DestinationConfig {
	return DestinationConfig{
		Config: transport.DefaultConfig(),
		Mode:   bulk.ModeMixed.String(),
		Action: bulk.ActionIndex,
	}
}

// DefaultBatchConfig 返回默认批次配置
func DefaultBatchConfig() BatchConfig {
	emitter := bulk.DefaultEmitterConfig()
	return BatchConfig{
		MaxBatchSize:      emitter.MaxBatchSize,
		DeliveryInterval:  emitter.DeliveryInterval,
		QueueSize:         emitter.QueueSize,
		BufferSize:        64 * 1024,
		MaxRetainedBuffer: 16 * 1024 * 1024,
	}
}

// DefaultSetupConfig 返回默认启动资源配置
func DefaultSetupConfig() SetupConfig {
	return SetupConfig{
		Config:    setup.DefaultConfig(),
		Transport: transport.DefaultConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "bulkflow",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:         false,
		OTLPEndpoint:    "localhost:4317",
		ServiceName:     "bulkflow",
		SampleRate:      0.1,
		MetricsInterval: 30 * time.Second,
	}
}
