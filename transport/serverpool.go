package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/internal/metrics"
	"github.com/BaSui01/bulkflow/internal/retry"
	"github.com/BaSui01/bulkflow/types"
)

var errEmptyPool = errors.New("server pool is empty")

// ServerPool rotates over a list of addresses. The list is swapped as a
// whole; readers always observe a complete snapshot.
type ServerPool struct {
	addresses atomic.Pointer[[]string]
	cursor    atomic.Uint64
	retryer   retry.Retryer
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewServerPool creates a pool. An empty pool is allowed; Next waits for
// discovery for up to retries*interval before giving up.
func NewServerPool(addresses []string, retries int, interval time.Duration, logger *zap.Logger) *ServerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &ServerPool{
		retryer: retry.New(retry.FixedPolicy(retries, interval), logger),
		logger:  logger.With(zap.String("component", "server_pool")),
	}
	p.store(addresses)
	return p
}

// WithMetrics attaches a metrics collector.
func (p *ServerPool) WithMetrics(c *metrics.Collector) *ServerPool {
	p.metrics = c
	return p
}

// Next returns the next address in round-robin order, starting at index 0.
// When the pool stays empty after all retries a NO_SERVERS error is returned;
// callers must not retry it further.
func (p *ServerPool) Next(ctx context.Context) (string, error) {
	var address string
	err := p.retryer.Do(ctx, func() error {
		list := p.addresses.Load()
		if list == nil || len(*list) == 0 {
			p.metrics.RecordServerPoolMiss()
			return errEmptyPool
		}
		index := (p.cursor.Add(1) - 1) % uint64(len(*list))
		address = (*list)[index]
		return nil
	})
	if err != nil {
		return "", types.NewError(types.ErrNoServers, "no servers available").WithCause(err)
	}
	return address, nil
}

// OnServerListChange replaces the address list. It implements
// ServerListListener.
func (p *ServerPool) OnServerListChange(addresses []string) {
	p.store(addresses)
	p.logger.Info("server list updated", zap.Strings("servers", addresses))
}

// Snapshot returns a copy of the current address list.
func (p *ServerPool) Snapshot() []string {
	list := p.addresses.Load()
	if list == nil {
		return nil
	}
	return append([]string(nil), (*list)...)
}

// Size returns the number of addresses currently in the pool.
func (p *ServerPool) Size() int {
	list := p.addresses.Load()
	if list == nil {
		return 0
	}
	return len(*list)
}

func (p *ServerPool) store(addresses []string) {
	list := append([]string(nil), addresses...)
	p.addresses.Store(&list)
}
