// =============================================================================
// 📦 bulkflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("bulkflow.yaml").
//	    WithEnvPrefix("BULKFLOW").
//	    WithValidator((*config.Config).Validate).
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/bulkflow/backoff"
	"github.com/BaSui01/bulkflow/bulk"
	"github.com/BaSui01/bulkflow/failover"
	"github.com/BaSui01/bulkflow/setup"
	"github.com/BaSui01/bulkflow/transport"
	"github.com/BaSui01/bulkflow/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 bulkflow 的完整配置结构
type Config struct {
	// Destination 目标集群与批量请求形态
	Destination DestinationConfig `yaml:"destination" env:"DESTINATION"`

	// Batch 批次组装配置
	Batch BatchConfig `yaml:"batch" env:"BATCH"`

	// Backoff 背压策略
	Backoff backoff.Config `yaml:"backoff" env:"BACKOFF"`

	// Failover 失败文档处理
	Failover failover.Config `yaml:"failover" env:"FAILOVER"`

	// Setup 启动前资源准备
	Setup SetupConfig `yaml:"setup" env:"SETUP"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// DestinationConfig 目标配置：传输层设置加上批量请求的默认目标
type DestinationConfig struct {
	transport.Config `yaml:",inline"`

	// 组装模式: mixed, index-per-batch
	Mode string `yaml:"mode" env:"MODE"`
	// 默认索引（条目未指定时使用）
	Index string `yaml:"index" env:"INDEX"`
	// 默认类型（旧版集群）
	Type string `yaml:"type" env:"TYPE"`
	// 批量动作: index, create
	Action string `yaml:"action" env:"ACTION"`
	// 响应过滤路径
	FilterPath string `yaml:"filter_path" env:"FILTER_PATH"`
}

// BatchConfig 批次组装配置
type BatchConfig struct {
	// 每批最大条目数
	MaxBatchSize int `yaml:"max_batch_size" env:"MAX_BATCH_SIZE"`
	// 未满批次的最长等待时间
	DeliveryInterval time.Duration `yaml:"delivery_interval" env:"DELIVERY_INTERVAL"`
	// 待组装队列长度
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 序列化缓冲区初始大小
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE"`
	// 归还池时保留的缓冲区最大容量（0 表示不限制）
	MaxRetainedBuffer int `yaml:"max_retained_buffer" env:"MAX_RETAINED_BUFFER"`
}

// Emitter 转换为 bulk.EmitterConfig
func (b BatchConfig) Emitter() bulk.EmitterConfig {
	return bulk.EmitterConfig{
		MaxBatchSize:     b.MaxBatchSize,
		DeliveryInterval: b.DeliveryInterval,
		QueueSize:        b.QueueSize,
	}
}

// SetupConfig 启动资源配置；Transport 与主目标配置按 ReusePolicies 合并
type SetupConfig struct {
	setup.Config `yaml:",inline"`

	Transport transport.Config `yaml:"transport" env:"TRANSPORT"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// /metrics 监听地址，为空则不暴露
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 指标导出周期
	MetricsInterval time.Duration `yaml:"metrics_interval" env:"METRICS_INTERVAL"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// DefaultEnvPrefix 默认环境变量前缀
const DefaultEnvPrefix = "BULKFLOW"

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	_, err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
	return err
}

// setFieldsFromEnv 递归设置结构体字段，返回是否有字段被设置
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) (bool, error) {
	t := v.Type()
	touched := false

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 内嵌结构体沿用当前前缀
		if fieldType.Anonymous && field.Kind() == reflect.Struct {
			set, err := l.setFieldsFromEnv(field, prefix)
			if err != nil {
				return false, err
			}
			touched = touched || set
			continue
		}

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			set, err := l.setFieldsFromEnv(field, envKey)
			if err != nil {
				return false, err
			}
			touched = touched || set
			continue
		}

		// 结构体指针：仅在至少一个子字段被设置时分配
		if field.Kind() == reflect.Pointer && field.Type().Elem().Kind() == reflect.Struct {
			tmp := reflect.New(field.Type().Elem())
			if !field.IsNil() {
				tmp.Elem().Set(field.Elem())
			}
			set, err := l.setFieldsFromEnv(tmp.Elem(), envKey)
			if err != nil {
				return false, err
			}
			if set {
				field.Set(tmp)
				touched = true
			}
			continue
		}

		// 获取环境变量值
		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return false, fmt.Errorf("failed to set %s: %w", envKey, err)
		}
		touched = true
	}

	return touched, nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 目标配置
	if len(c.Destination.ServerList) == 0 {
		errs = append(errs, "destination.server_list must not be empty")
	}
	if err := c.Destination.Config.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := bulk.ParseMode(c.Destination.Mode); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.Destination.Action {
	case "", bulk.ActionIndex, bulk.ActionCreate:
	default:
		errs = append(errs, fmt.Sprintf("unknown bulk action %q", c.Destination.Action))
	}

	// 批次配置
	if c.Batch.MaxBatchSize <= 0 {
		errs = append(errs, "batch.max_batch_size must be positive")
	}
	if c.Batch.DeliveryInterval <= 0 {
		errs = append(errs, "batch.delivery_interval must be positive")
	}
	if c.Batch.QueueSize <= 0 {
		errs = append(errs, "batch.queue_size must be positive")
	}

	// 策略配置
	if err := c.Backoff.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Failover.Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Setup.Config.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	// 日志与遥测
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}
	if c.Telemetry.Enabled && c.Telemetry.MetricsInterval <= 0 {
		errs = append(errs, "telemetry.metrics_interval must be positive")
	}

	if len(errs) > 0 {
		return types.NewConfigurationError("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
