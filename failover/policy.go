package failover

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/bulk"
	"github.com/BaSui01/bulkflow/types"
)

// FailedItem is the record handed to a failover sink. It owns a copy of the
// payload; the originating batch may be released after Deliver returns.
// Payload is stored as raw bytes (base64 in JSON) so non-UTF-8 documents
// replay unchanged.
type FailedItem struct {
	BatchID  string    `json:"batch_id"`
	Index    string    `json:"index"`
	Type     string    `json:"type,omitempty"`
	ID       string    `json:"id,omitempty"`
	Payload  []byte    `json:"payload"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// ToItem rebuilds a bulk item for redelivery.
func (f FailedItem) ToItem() *bulk.Item {
	return &bulk.Item{
		Index:  f.Index,
		Type:   f.Type,
		ID:     f.ID,
		Source: bulk.BytesSource(f.Payload),
	}
}

// Policy receives individually failed items.
type Policy interface {
	Deliver(ctx context.Context, item FailedItem) error
}

// FailedItemOps creates failover records from batch items.
type FailedItemOps interface {
	CreateItem(batchID string, item *bulk.Item, reason error) FailedItem
}

// DefaultFailedItemOps copies payload and target and attaches the reason.
type DefaultFailedItemOps struct {
	Now func() time.Time
}

// CreateItem implements FailedItemOps.
func (o DefaultFailedItemOps) CreateItem(batchID string, item *bulk.Item, reason error) FailedItem {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}

	record := FailedItem{
		BatchID:  batchID,
		Index:    item.Index,
		Type:     item.Type,
		ID:       item.ID,
		Payload:  bytes.Clone(item.Payload()),
		FailedAt: now().UTC(),
	}
	if reason != nil {
		record.Reason = reason.Error()
	}
	return record
}

// Policy kinds accepted by New.
const (
	KindNone  = "none"
	KindRedis = "redis"
)

// Config selects a failover sink.
type Config struct {
	Kind  string      `yaml:"kind" env:"KIND"`
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// DefaultConfig 返回默认配置（丢弃失败文档）
func DefaultConfig() Config {
	return Config{Kind: KindNone, Redis: DefaultRedisConfig()}
}

// Validate 校验配置
func (c Config) Validate() error {
	switch strings.ToLower(c.Kind) {
	case "", KindNone:
		return nil
	case KindRedis:
		if c.Redis.Addr == "" || c.Redis.Key == "" {
			return types.NewConfigurationError("failover.redis.addr and failover.redis.key are required")
		}
		return nil
	default:
		return types.NewConfigurationError("unknown failover kind %q", c.Kind)
	}
}

// =============================================================================
// 🪂 基础策略
// =============================================================================

// NoopPolicy drops every item.
type NoopPolicy struct{}

// Deliver implements Policy.
func (NoopPolicy) Deliver(context.Context, FailedItem) error { return nil }

// FuncPolicy adapts a function to Policy.
type FuncPolicy func(ctx context.Context, item FailedItem) error

// Deliver implements Policy.
func (f FuncPolicy) Deliver(ctx context.Context, item FailedItem) error {
	if f == nil {
		return errors.New("nil failover func")
	}
	return f(ctx, item)
}

// New builds the sink selected by cfg. Sinks holding connections implement
// io.Closer.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.ToLower(cfg.Kind) == KindRedis {
		return NewRedisPolicy(ctx, cfg.Redis, logger)
	}
	return NoopPolicy{}, nil
}
