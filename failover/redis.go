package failover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/internal/retry"
)

// ErrPolicyClosed is returned after Close.
var ErrPolicyClosed = errors.New("redis failover policy is closed")

// RedisConfig Redis 故障转移配置
type RedisConfig struct {
	// Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" env:"DB"`

	// 失败文档列表键
	Key string `yaml:"key" env:"KEY"`

	// 列表最大长度（0 表示不限制），超出时丢弃最旧的记录
	MaxLen int64 `yaml:"max_len" env:"MAX_LEN"`

	// 列表过期时间（0 表示不过期）
	TTL time.Duration `yaml:"ttl" env:"TTL"`

	// 写入失败后的最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
}

// DefaultRedisConfig 返回默认配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       "localhost:6379",
		Key:        "bulkflow:failed",
		MaxLen:     100000,
		MaxRetries: 3,
		PoolSize:   10,
	}
}

// =============================================================================
// 💾 Redis 失败文档列表
// =============================================================================

// RedisPolicy appends failed items as JSON to a Redis list. Replay pops them
// back in arrival order.
type RedisPolicy struct {
	redis   *redis.Client
	config  RedisConfig
	retryer retry.Retryer
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
}

// NewRedisPolicy connects to Redis and verifies the connection.
func NewRedisPolicy(ctx context.Context, config RedisConfig, logger *zap.Logger) (*RedisPolicy, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Key == "" {
		config.Key = DefaultRedisConfig().Key
	}

	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: -1, // 写入重试由 retryer 负责
		PoolSize:   config.PoolSize,
	})

	// 测试连接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis failover initialized",
		zap.String("addr", config.Addr),
		zap.String("key", config.Key),
	)

	logger = logger.With(zap.String("component", "failover_redis"))

	// 写入失败按指数退避重试
	policy := retry.DefaultPolicy()
	policy.MaxRetries = config.MaxRetries

	return &RedisPolicy{
		redis:   client,
		config:  config,
		retryer: retry.New(policy, logger),
		logger:  logger,
	}, nil
}

// Deliver implements Policy.
func (p *RedisPolicy) Deliver(ctx context.Context, item FailedItem) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPolicyClosed
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal failed item: %w", err)
	}

	err = p.retryer.Do(ctx, func() error {
		pipe := p.redis.TxPipeline()
		pipe.RPush(ctx, p.config.Key, data)
		if p.config.MaxLen > 0 {
			pipe.LTrim(ctx, p.config.Key, -p.config.MaxLen, -1)
		}
		if p.config.TTL > 0 {
			pipe.Expire(ctx, p.config.Key, p.config.TTL)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		p.logger.Error("failover push failed", zap.String("batch_id", item.BatchID), zap.Error(err))
		return fmt.Errorf("failover push failed: %w", err)
	}
	return nil
}

// Replay pops up to limit items (all when limit <= 0) and hands them to fn.
// An item whose fn call fails is pushed back to the head of the list and
// Replay stops with that error.
func (p *RedisPolicy) Replay(ctx context.Context, limit int, fn func(FailedItem) error) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPolicyClosed
	}

	replayed := 0
	for limit <= 0 || replayed < limit {
		raw, err := p.redis.LPop(ctx, p.config.Key).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return replayed, fmt.Errorf("failover pop failed: %w", err)
		}

		var item FailedItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			p.logger.Warn("dropping undecodable failover record", zap.Error(err))
			continue
		}

		if err := fn(item); err != nil {
			if pushErr := p.redis.LPush(ctx, p.config.Key, raw).Err(); pushErr != nil {
				p.logger.Error("failed to requeue failover record", zap.Error(pushErr))
			}
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

// Len returns the number of stored records.
func (p *RedisPolicy) Len(ctx context.Context) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPolicyClosed
	}
	return p.redis.LLen(ctx, p.config.Key).Result()
}

// Close 关闭 Redis 连接
func (p *RedisPolicy) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	p.logger.Info("closing redis failover")

	return p.redis.Close()
}
