// Package retry 提供有界重试能力。
//
// 服务器池在地址列表暂时为空时使用固定间隔重试；
// Redis 故障转移写入使用指数退避。
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy 定义重试策略配置
type Policy struct {
	MaxRetries      int                                               // 最大重试次数（0 表示不重试）
	InitialDelay    time.Duration                                     // 初始延迟时间
	MaxDelay        time.Duration                                     // 最大延迟时间
	Multiplier      float64                                           // 延迟倍增因子，1.0 即固定间隔
	Jitter          bool                                              // 是否添加随机抖动
	RetryableErrors []error                                           // 可重试的错误类型（为空则重试所有错误）
	OnRetry         func(attempt int, err error, delay time.Duration) // 重试回调
}

// DefaultPolicy 返回默认的指数退避策略
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// FixedPolicy 返回固定间隔、无抖动的策略
func FixedPolicy(retries int, interval time.Duration) *Policy {
	return &Policy{
		MaxRetries:   retries,
		InitialDelay: interval,
		MaxDelay:     interval,
		Multiplier:   1.0,
	}
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试
	Do(ctx context.Context, fn func() error) error
}

// ErrExhausted 在重试次数耗尽后包装最后一次错误
var ErrExhausted = errors.New("retries exhausted")

type backoffRetryer struct {
	policy *Policy
	logger *zap.Logger
}

// New 创建重试器；传入的策略会被复制，调用方后续修改不会生效
func New(policy *Policy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := *policy
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 1.0
	}

	return &backoffRetryer{policy: &p, logger: logger}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)

			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			// 等待延迟，同时监听 context 取消
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !r.isRetryable(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, r.policy.MaxRetries+1, lastErr)
}

// calculateDelay 指数退避 + 可选抖动（±25%）
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))

	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}

	return time.Duration(delay)
}

func (r *backoffRetryer) isRetryable(err error) bool {
	if len(r.policy.RetryableErrors) == 0 {
		return true
	}
	for _, retryableErr := range r.policy.RetryableErrors {
		if errors.Is(err, retryableErr) {
			return true
		}
	}
	return false
}
