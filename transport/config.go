package transport

import (
	"time"

	"github.com/BaSui01/bulkflow/types"
)

// Config configures a Client. It is built once, validated and never mutated
// afterwards; policy resolution works on clones.
type Config struct {
	// ServerList holds resolved addresses, e.g. "http://localhost:9200".
	ServerList []string `yaml:"server_list" env:"SERVER_LIST"`

	// Security is optional; nil means plain HTTP without credentials.
	Security *SecurityConfig `yaml:"security" env:"SECURITY"`

	ConnectTimeout      time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	ReadTimeout         time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	MaxTotalConnections int           `yaml:"max_total_connections" env:"MAX_TOTAL_CONNECTIONS"`
	IOThreadCount       int           `yaml:"io_thread_count" env:"IO_THREAD_COUNT"`
	IOQueueSize         int           `yaml:"io_queue_size" env:"IO_QUEUE_SIZE"`

	// ServerPoolRetries bounds how often an empty pool is re-checked.
	ServerPoolRetries       int           `yaml:"server_pool_retries" env:"SERVER_POOL_RETRIES"`
	ServerPoolRetryInterval time.Duration `yaml:"server_pool_retry_interval" env:"SERVER_POOL_RETRY_INTERVAL"`
}

// SecurityConfig carries already-loaded credentials and TLS switches.
// Loading them from files is the caller's concern.
type SecurityConfig struct {
	Username           string `yaml:"username" env:"USERNAME"`
	Password           string `yaml:"password" env:"PASSWORD"`
	ServerName         string `yaml:"server_name" env:"SERVER_NAME"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
}

// IsEmpty reports whether no security setting is present.
func (s *SecurityConfig) IsEmpty() bool {
	return s == nil || *s == SecurityConfig{}
}

// DefaultConfig returns defaults without servers.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:          1 * time.Second,
		ReadTimeout:             10 * time.Second,
		MaxTotalConnections:     8,
		IOThreadCount:           4,
		IOQueueSize:             1024,
		ServerPoolRetries:       5,
		ServerPoolRetryInterval: 100 * time.Millisecond,
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	if c.ServerList != nil {
		out.ServerList = append([]string(nil), c.ServerList...)
	}
	if c.Security != nil {
		sec := *c.Security
		out.Security = &sec
	}
	return out
}

// Validate rejects configurations that cannot start a client.
func (c Config) Validate() error {
	if c.ReadTimeout < 0 || c.ConnectTimeout < 0 {
		return types.NewConfigurationError("timeouts must not be negative")
	}
	if c.IOThreadCount <= 0 {
		return types.NewConfigurationError("io_thread_count must be positive, got %d", c.IOThreadCount)
	}
	if c.ServerPoolRetries < 0 {
		return types.NewConfigurationError("server_pool_retries must not be negative")
	}
	return nil
}
