// Package pool provides the goroutine pool used for transport I/O and pooled
// byte buffers used for batch payloads.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// GoroutinePool manages a bounded set of worker goroutines. Transport
// completion callbacks run on these workers, never on the submitting goroutine.
type GoroutinePool struct {
	name        string
	maxWorkers  int
	taskQueue   chan taskWrapper
	workerCount atomic.Int32
	activeCount atomic.Int32

	// closeMu guards taskQueue against send-after-close.
	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	idleTimeout time.Duration
	logger      *zap.Logger
}

type taskWrapper struct {
	task Task
	ctx  context.Context
}

// GoroutinePoolConfig configures the pool.
type GoroutinePoolConfig struct {
	Name        string        `json:"name" yaml:"name"`
	MaxWorkers  int           `json:"max_workers" yaml:"max_workers"`
	QueueSize   int           `json:"queue_size" yaml:"queue_size"`
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// DefaultGoroutinePoolConfig returns sensible defaults.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		Name:        "io",
		MaxWorkers:  8,
		QueueSize:   1024,
		IdleTimeout: 60 * time.Second,
	}
}

// NewGoroutinePool creates a new goroutine pool.
func NewGoroutinePool(config GoroutinePoolConfig, logger *zap.Logger) *GoroutinePool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 60 * time.Second
	}
	return &GoroutinePool{
		name:        config.Name,
		maxWorkers:  config.MaxWorkers,
		taskQueue:   make(chan taskWrapper, config.QueueSize),
		idleTimeout: config.IdleTimeout,
		logger:      logger.With(zap.String("component", "goroutine_pool"), zap.String("pool", config.Name)),
	}
}

// Submit queues a task without waiting for it to run.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)

	wrapper := taskWrapper{task: task, ctx: ctx}

	select {
	case p.taskQueue <- wrapper:
		p.ensureWorker()
		return nil
	default:
		// Queue full, try to spawn new worker
		if p.trySpawnWorker() {
			select {
			case p.taskQueue <- wrapper:
				return nil
			default:
			}
		}
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *GoroutinePool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *GoroutinePool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case wrapper, ok := <-p.taskQueue:
			if !ok {
				p.workerCount.Add(-1)
				return
			}

			p.activeCount.Add(1)
			err := p.executeTask(wrapper)
			p.activeCount.Add(-1)

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}

			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// The last worker stays parked; queued tasks always have a consumer.
			current := p.workerCount.Load()
			if current > 1 && p.workerCount.CompareAndSwap(current, current-1) {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

func (p *GoroutinePool) executeTask(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", zap.Any("panic", r))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return wrapper.task(wrapper.ctx)
}

// Close stops accepting work and waits for queued tasks to finish.
func (p *GoroutinePool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.closeMu.Unlock()

	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// GoroutinePoolStats contains pool statistics.
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}
