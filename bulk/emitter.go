package bulk

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEmitterClosed = errors.New("emitter closed")
)

// Listener receives sealed batches and reports whether the batch was
// accepted for delivery. The listener owns the batch from then on.
type Listener func(batch *Batch) bool

// EmitterConfig 配置批次发射器
type EmitterConfig struct {
	MaxBatchSize     int           `json:"max_batch_size" yaml:"max_batch_size"`
	DeliveryInterval time.Duration `json:"delivery_interval" yaml:"delivery_interval"`
	QueueSize        int           `json:"queue_size" yaml:"queue_size"`
}

// DefaultEmitterConfig 返回默认配置
func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		MaxBatchSize:     1000,
		DeliveryInterval: time.Second,
		QueueSize:        10000,
	}
}

// Emitter 累积文档，在达到批大小或投递间隔到期时封装批次并交给 Listener。
type Emitter struct {
	config     EmitterConfig
	newBuilder func() *Builder
	listener   Listener
	logger     *zap.Logger

	queue   chan *Item
	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup

	// 计量
	submitted atomic.Int64
	batches   atomic.Int64
	accepted  atomic.Int64
	rejected  atomic.Int64
}

// NewEmitter validates the builder factory eagerly and starts the
// accumulation goroutine.
func NewEmitter(config EmitterConfig, newBuilder func() *Builder, listener Listener, logger *zap.Logger) (*Emitter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if newBuilder == nil || listener == nil {
		return nil, errors.New("emitter requires a builder factory and a listener")
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = DefaultEmitterConfig().MaxBatchSize
	}
	if config.DeliveryInterval <= 0 {
		config.DeliveryInterval = DefaultEmitterConfig().DeliveryInterval
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.MaxBatchSize
	}

	// 提前暴露缺失的序列化器/缓冲区配置
	probe, err := newBuilder().Build()
	if err != nil {
		return nil, err
	}
	_ = probe.Completed()

	e := &Emitter{
		config:     config,
		newBuilder: newBuilder,
		listener:   listener,
		logger:     logger.With(zap.String("component", "emitter")),
		queue:      make(chan *Item, config.QueueSize),
	}

	e.wg.Add(1)
	go e.run()

	return e, nil
}

// Add queues an item, blocking while the queue is full.
func (e *Emitter) Add(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("nil item")
	}

	e.closeMu.RLock()
	defer e.closeMu.RUnlock()

	if e.closed {
		return ErrEmitterClosed
	}

	select {
	case e.queue <- item:
		e.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Emitter) run() {
	defer e.wg.Done()

	pending := make([]*Item, 0, e.config.MaxBatchSize)
	timer := time.NewTimer(e.config.DeliveryInterval)
	defer timer.Stop()

	for {
		select {
		case item, ok := <-e.queue:
			if !ok {
				// 投递剩余文档
				e.emit(pending)
				return
			}

			pending = append(pending, item)

			if len(pending) >= e.config.MaxBatchSize {
				e.emit(pending)
				pending = make([]*Item, 0, e.config.MaxBatchSize)
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(e.config.DeliveryInterval)
			}

		case <-timer.C:
			if len(pending) > 0 {
				e.emit(pending)
				pending = make([]*Item, 0, e.config.MaxBatchSize)
			}
			timer.Reset(e.config.DeliveryInterval)
		}
	}
}

func (e *Emitter) emit(items []*Item) {
	if len(items) == 0 {
		return
	}

	builder := e.newBuilder()
	for _, item := range items {
		// 新建的 builder 不会处于封装状态
		_ = builder.Add(item)
	}

	batch, err := builder.Build()
	if err != nil {
		e.logger.Error("failed to build batch, dropping items",
			zap.Int("items", len(items)),
			zap.Error(err),
		)
		for _, item := range items {
			item.release()
		}
		return
	}

	e.batches.Add(1)
	if e.listener(batch) {
		e.accepted.Add(1)
	} else {
		e.rejected.Add(1)
		e.logger.Debug("batch not accepted", zap.String("batch_id", batch.ID()), zap.Int("items", len(items)))
	}
}

// Close stops accepting items, emits the remainder and waits for the
// listener to return.
func (e *Emitter) Close() {
	e.closeMu.Lock()
	if e.closed {
		e.closeMu.Unlock()
		return
	}
	e.closed = true
	close(e.queue)
	e.closeMu.Unlock()

	e.wg.Wait()
}

// Stats 返回发射器统计
func (e *Emitter) Stats() EmitterStats {
	return EmitterStats{
		Submitted: e.submitted.Load(),
		Batches:   e.batches.Load(),
		Accepted:  e.accepted.Load(),
		Rejected:  e.rejected.Load(),
		Queued:    len(e.queue),
	}
}

// EmitterStats 包含发射器统计
type EmitterStats struct {
	Submitted int64 `json:"submitted"`
	Batches   int64 `json:"batches"`
	Accepted  int64 `json:"accepted"`
	Rejected  int64 `json:"rejected"`
	Queued    int   `json:"queued"`
}

// AverageBatchSize 返回平均批大小
func (s EmitterStats) AverageBatchSize() float64 {
	if s.Batches == 0 {
		return 0
	}
	return float64(s.Submitted) / float64(s.Batches)
}
