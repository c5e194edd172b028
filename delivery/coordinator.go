package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/backoff"
	"github.com/BaSui01/bulkflow/bulk"
	"github.com/BaSui01/bulkflow/failover"
	"github.com/BaSui01/bulkflow/internal/metrics"
	"github.com/BaSui01/bulkflow/transport"
	"github.com/BaSui01/bulkflow/types"
)

// ErrBackoffApplied is the failure reason of batches rejected by the
// backoff policy.
var ErrBackoffApplied = errors.New("backoff applied, batch rejected")

// Transport is the part of transport.Client used by the coordinator.
type Transport interface {
	Start() error
	IsStarted() bool
	ExecuteAsync(ctx context.Context, req transport.Request, decoder transport.ResponseDecoder, handler transport.ResponseHandler)
}

// FailureHandlerFunc fans a failed batch out to a failover policy. It
// reports whether every item was delivered to the sink.
type FailureHandlerFunc func(batch *bulk.Batch, reason error) bool

// Operation runs after a batch was delivered successfully.
type Operation interface {
	Execute(ctx context.Context, batch *bulk.Batch) error
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context, batch *bulk.Batch) error

// Execute implements Operation.
func (f OperationFunc) Execute(ctx context.Context, batch *bulk.Batch) error {
	return f(ctx, batch)
}

// Coordinator drives batches through backoff admission, asynchronous
// dispatch and success/failure routing.
type Coordinator struct {
	transport Transport
	backoff   backoff.Policy
	itemOps   failover.FailedItemOps
	metrics   *metrics.Collector
	logger    *zap.Logger

	failoverTimeout time.Duration

	// 启动失败不缓存，下一个批次会再次尝试
	startMu sync.Mutex
	started bool

	opsMu      sync.RWMutex
	operations []Operation
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithFailedItemOps replaces DefaultFailedItemOps.
func WithFailedItemOps(ops failover.FailedItemOps) Option {
	return func(c *Coordinator) { c.itemOps = ops }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithFailoverTimeout bounds each Deliver call.
func WithFailoverTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.failoverTimeout = d }
}

// New creates a coordinator. A nil backoff policy never applies.
func New(t Transport, policy backoff.Policy, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	if t == nil {
		return nil, types.NewConfigurationError("delivery coordinator requires a transport")
	}
	if policy == nil {
		policy = backoff.NoopPolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		transport:       t,
		backoff:         policy,
		itemOps:         failover.DefaultFailedItemOps{},
		logger:          logger.With(zap.String("component", "delivery")),
		failoverTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AddOperation registers a post-dispatch operation.
func (c *Coordinator) AddOperation(op Operation) {
	c.opsMu.Lock()
	defer c.opsMu.Unlock()
	c.operations = append(c.operations, op)
}

// BatchListener returns the listener that admits and dispatches batches.
// It reports false when the batch was rejected before dispatch.
func (c *Coordinator) BatchListener(fp failover.Policy) bulk.Listener {
	onFailure := c.FailureHandler(fp)

	return func(batch *bulk.Batch) bool {
		// 首个批次到达时才建立连接
		if err := c.ensureStarted(); err != nil {
			c.reject(batch, onFailure, types.NewTransportError("failed to start transport", err))
			return false
		}

		if c.backoff.ShouldApply(batch) {
			c.logger.Warn("backoff applied, batch rejected",
				zap.String("batch_id", batch.ID()),
				zap.Int("items", batch.Size()),
			)
			c.reject(batch, onFailure, ErrBackoffApplied)
			return false
		}

		c.backoff.Register(batch)
		c.metrics.BatchDispatched()

		h := &batchHandler{
			coordinator: c,
			batch:       batch,
			items:       batch.Size(),
			onFailure:   onFailure,
			started:     time.Now(),
		}
		c.transport.ExecuteAsync(context.Background(), batch, batch.Decoder(), h)
		return true
	}
}

// FailureHandler returns the handler that delivers every item of a failed
// batch to fp individually.
func (c *Coordinator) FailureHandler(fp failover.Policy) FailureHandlerFunc {
	if fp == nil {
		fp = failover.NoopPolicy{}
	}

	return func(batch *bulk.Batch, reason error) bool {
		items := batch.Items()
		delivered := 0
		for _, item := range items {
			ok := c.deliverItem(fp, batch.ID(), item, reason)
			c.metrics.RecordFailover(ok)
			if ok {
				delivered++
			}
		}

		c.logger.Warn("batch failed, items handed to failover",
			zap.String("batch_id", batch.ID()),
			zap.Int("items", len(items)),
			zap.Int("delivered", delivered),
			zap.Error(reason),
		)
		return delivered == len(items)
	}
}

func (c *Coordinator) deliverItem(fp failover.Policy, batchID string, item *bulk.Item, reason error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("failover policy panicked",
				zap.String("batch_id", batchID),
				zap.Any("panic", r),
			)
			ok = false
		}
	}()

	record := c.itemOps.CreateItem(batchID, item, reason)

	ctx, cancel := context.WithTimeout(context.Background(), c.failoverTimeout)
	defer cancel()

	if err := fp.Deliver(ctx, record); err != nil {
		c.logger.Error("failover delivery failed",
			zap.String("batch_id", batchID),
			zap.String("index", item.Index),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (c *Coordinator) ensureStarted() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.started {
		return nil
	}
	if !c.transport.IsStarted() {
		if err := c.transport.Start(); err != nil {
			return err
		}
		c.logger.Info("transport started on first batch")
	}
	c.started = true
	return nil
}

// reject fails a batch that was never registered with the backoff policy.
func (c *Coordinator) reject(batch *bulk.Batch, onFailure FailureHandlerFunc, reason error) {
	items := batch.Size()
	defer func() {
		c.release(batch)
		c.metrics.RecordBatch(metrics.OutcomeRejected, items)
	}()
	onFailure(batch, reason)
}

func (c *Coordinator) runOperations(batch *bulk.Batch) {
	c.opsMu.RLock()
	ops := append([]Operation(nil), c.operations...)
	c.opsMu.RUnlock()

	for i, op := range ops {
		c.safely(fmt.Sprintf("operation %d", i), batch, func() error {
			return op.Execute(context.Background(), batch)
		})
	}
}

// safely runs fn, logging its error or panic.
func (c *Coordinator) safely(name string, batch *bulk.Batch, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in "+name,
				zap.String("batch_id", batch.ID()),
				zap.Any("panic", r),
			)
		}
	}()
	if err := fn(); err != nil {
		c.logger.Warn(name+" failed",
			zap.String("batch_id", batch.ID()),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) release(batch *bulk.Batch) {
	if err := batch.Completed(); err != nil {
		c.logger.Error("batch release failed", zap.String("batch_id", batch.ID()), zap.Error(err))
	}
}

// =============================================================================
// 📬 批次响应处理
// =============================================================================

// batchHandler is the response handler bound to one dispatched batch.
type batchHandler struct {
	coordinator *Coordinator
	batch       *bulk.Batch
	items       int
	onFailure   FailureHandlerFunc
	started     time.Time
	once        sync.Once
}

// Completed implements transport.ResponseHandler.
func (h *batchHandler) Completed(resp transport.Response) {
	succeeded := resp.Succeeded()
	defer h.cleanup(succeeded)

	if !succeeded {
		reason := types.NewProtocolError(resp.ResponseCode(), resp.ErrorMessage())
		h.onFailure(h.batch, reason)
		return
	}

	h.coordinator.logger.Debug("batch delivered",
		zap.String("batch_id", h.batch.ID()),
		zap.Int("items", h.items),
		zap.Duration("latency", time.Since(h.started)),
	)
	h.coordinator.runOperations(h.batch)
}

// Failed implements transport.ResponseHandler.
func (h *batchHandler) Failed(err error) {
	defer h.cleanup(false)
	h.onFailure(h.batch, err)
}

// cleanup deregisters the batch and releases it, exactly once.
func (h *batchHandler) cleanup(succeeded bool) {
	h.once.Do(func() {
		c := h.coordinator
		defer func() {
			c.release(h.batch)
			c.metrics.BatchSettled()
			outcome := metrics.OutcomeSucceeded
			if !succeeded {
				outcome = metrics.OutcomeFailed
			}
			c.metrics.RecordBatch(outcome, h.items)
		}()

		c.safely("backoff deregister", h.batch, func() error {
			if recorder, ok := c.backoff.(backoff.OutcomeRecorder); ok {
				recorder.RecordOutcome(h.batch, succeeded)
			}
			c.backoff.Deregister(h.batch)
			return nil
		})
	})
}
