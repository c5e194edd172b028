package backoff

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/BaSui01/bulkflow/bulk"
	"github.com/BaSui01/bulkflow/types"
)

// Policy gates batch admission. Register and Deregister are paired 1:1 per
// admitted batch and may be called from different goroutines.
type Policy interface {
	ShouldApply(batch *bulk.Batch) bool
	Register(batch *bulk.Batch)
	Deregister(batch *bulk.Batch)
}

// OutcomeRecorder is implemented by policies that react to delivery
// results. The coordinator reports the outcome before Deregister.
type OutcomeRecorder interface {
	RecordOutcome(batch *bulk.Batch, succeeded bool)
}

// Policy kinds accepted by New.
const (
	KindNone       = "none"
	KindBatchLimit = "batch-limit"
	KindRateLimit  = "rate-limit"
	KindBreaker    = "breaker"
)

// Config selects and tunes a policy.
type Config struct {
	Kind string `yaml:"kind" env:"KIND"`

	// batch-limit
	MaxBatchesInFlight int `yaml:"max_batches_in_flight" env:"MAX_BATCHES_IN_FLIGHT"`

	// rate-limit
	BatchesPerSecond float64 `yaml:"batches_per_second" env:"BATCHES_PER_SECOND"`
	Burst            int     `yaml:"burst" env:"BURST"`

	// breaker
	FailureThreshold   int           `yaml:"failure_threshold" env:"FAILURE_THRESHOLD"`
	ResetTimeout       time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	HalfOpenMaxBatches int           `yaml:"half_open_max_batches" env:"HALF_OPEN_MAX_BATCHES"`
}

// DefaultConfig 返回默认配置（批次上限策略）
func DefaultConfig() Config {
	return Config{
		Kind:               KindBatchLimit,
		MaxBatchesInFlight: 8,
		BatchesPerSecond:   50,
		Burst:              10,
		FailureThreshold:   5,
		ResetTimeout:       30 * time.Second,
		HalfOpenMaxBatches: 1,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	switch strings.ToLower(c.Kind) {
	case "", KindNone:
	case KindBatchLimit:
		if c.MaxBatchesInFlight <= 0 {
			return types.NewConfigurationError("backoff.max_batches_in_flight must be positive")
		}
	case KindRateLimit:
		if c.BatchesPerSecond <= 0 || c.Burst <= 0 {
			return types.NewConfigurationError("backoff.batches_per_second and backoff.burst must be positive")
		}
	case KindBreaker:
		if c.FailureThreshold <= 0 || c.ResetTimeout <= 0 {
			return types.NewConfigurationError("backoff.failure_threshold and backoff.reset_timeout must be positive")
		}
	default:
		return types.NewConfigurationError("unknown backoff kind %q", c.Kind)
	}
	return nil
}

// New builds the policy selected by cfg.
func New(cfg Config) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Kind) {
	case KindBatchLimit:
		return NewBatchLimitPolicy(cfg.MaxBatchesInFlight), nil
	case KindRateLimit:
		return NewRateLimitPolicy(cfg.BatchesPerSecond, cfg.Burst), nil
	case KindBreaker:
		return NewBreakerPolicy(BreakerConfig{
			FailureThreshold:   cfg.FailureThreshold,
			ResetTimeout:       cfg.ResetTimeout,
			HalfOpenMaxBatches: cfg.HalfOpenMaxBatches,
		}), nil
	default:
		return NoopPolicy{}, nil
	}
}

// =============================================================================
// 🚦 基础策略
// =============================================================================

// NoopPolicy never applies.
type NoopPolicy struct{}

// ShouldApply implements Policy.
func (NoopPolicy) ShouldApply(*bulk.Batch) bool { return false }

// Register implements Policy.
func (NoopPolicy) Register(*bulk.Batch) {}

// Deregister implements Policy.
func (NoopPolicy) Deregister(*bulk.Batch) {}

// BatchLimitPolicy applies once the number of registered batches reaches
// the limit.
type BatchLimitPolicy struct {
	limit    int64
	inFlight atomic.Int64
}

// NewBatchLimitPolicy creates a policy admitting at most limit batches in
// flight.
func NewBatchLimitPolicy(limit int) *BatchLimitPolicy {
	if limit <= 0 {
		limit = 1
	}
	return &BatchLimitPolicy{limit: int64(limit)}
}

// ShouldApply implements Policy.
func (p *BatchLimitPolicy) ShouldApply(*bulk.Batch) bool {
	return p.inFlight.Load() >= p.limit
}

// Register implements Policy.
func (p *BatchLimitPolicy) Register(*bulk.Batch) {
	p.inFlight.Add(1)
}

// Deregister implements Policy.
func (p *BatchLimitPolicy) Deregister(*bulk.Batch) {
	p.inFlight.Add(-1)
}

// InFlight returns the number of registered batches.
func (p *BatchLimitPolicy) InFlight() int {
	return int(p.inFlight.Load())
}

// Chain applies when any of its policies applies. Registration is forwarded
// to every policy.
type Chain []Policy

// ShouldApply implements Policy.
func (c Chain) ShouldApply(batch *bulk.Batch) bool {
	for _, p := range c {
		if p.ShouldApply(batch) {
			return true
		}
	}
	return false
}

// Register implements Policy.
func (c Chain) Register(batch *bulk.Batch) {
	for _, p := range c {
		p.Register(batch)
	}
}

// Deregister implements Policy.
func (c Chain) Deregister(batch *bulk.Batch) {
	for _, p := range c {
		p.Deregister(batch)
	}
}

// RecordOutcome forwards to members implementing OutcomeRecorder.
func (c Chain) RecordOutcome(batch *bulk.Batch, succeeded bool) {
	for _, p := range c {
		if r, ok := p.(OutcomeRecorder); ok {
			r.RecordOutcome(batch, succeeded)
		}
	}
}
