package backoff

import (
	"sync"
	"time"

	"github.com/BaSui01/bulkflow/bulk"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常派发）
	StateClosed State = iota
	// StateOpen 打开状态（拒绝所有批次）
	StateOpen
	// StateHalfOpen 半开状态（放行少量试探批次）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// BreakerConfig 熔断策略配置
type BreakerConfig struct {
	// FailureThreshold 连续失败批次数阈值
	FailureThreshold int
	// ResetTimeout 从 Open 到 HalfOpen 的等待时间
	ResetTimeout time.Duration
	// HalfOpenMaxBatches 半开状态下允许的试探批次数
	HalfOpenMaxBatches int
	// OnStateChange 状态变更回调
	OnStateChange func(from, to State)
}

// BreakerPolicy rejects batches after consecutive delivery failures and
// probes the destination again after ResetTimeout.
type BreakerPolicy struct {
	config BreakerConfig
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    int
	openedAt        time.Time
	halfOpenBatches int
}

// NewBreakerPolicy 创建熔断策略
func NewBreakerPolicy(config BreakerConfig) *BreakerPolicy {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxBatches <= 0 {
		config.HalfOpenMaxBatches = 1
	}
	return &BreakerPolicy{config: config, now: time.Now}
}

// ShouldApply implements Policy.
func (b *BreakerPolicy) ShouldApply(*bulk.Batch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.ResetTimeout {
			return true
		}
		b.setState(StateHalfOpen)
		b.halfOpenBatches = 1
		return false

	case StateHalfOpen:
		if b.halfOpenBatches >= b.config.HalfOpenMaxBatches {
			return true
		}
		b.halfOpenBatches++
		return false

	default:
		return false
	}
}

// Register implements Policy.
func (b *BreakerPolicy) Register(*bulk.Batch) {}

// Deregister implements Policy.
func (b *BreakerPolicy) Deregister(*bulk.Batch) {}

// RecordOutcome implements OutcomeRecorder.
func (b *BreakerPolicy) RecordOutcome(_ *bulk.Batch, succeeded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if succeeded {
		b.failureCount = 0
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		// 试探失败，重新熔断
		b.trip()
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.trip()
		}
	}
}

// State 获取当前状态
func (b *BreakerPolicy) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复
func (b *BreakerPolicy) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failureCount = 0
	b.setState(StateClosed)
}

func (b *BreakerPolicy) trip() {
	b.openedAt = b.now()
	b.failureCount = 0
	b.setState(StateOpen)
}

func (b *BreakerPolicy) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
