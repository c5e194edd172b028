package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// Pool is a generic object pool.
type Pool[T any] struct {
	pool    sync.Pool
	newFunc func() T
	reset   func(*T)

	// Metrics
	gets   atomic.Int64
	puts   atomic.Int64
	news   atomic.Int64
	resets atomic.Int64
}

// NewPool creates a new object pool.
func NewPool[T any](newFunc func() T, resetFunc func(*T)) *Pool[T] {
	p := &Pool[T]{
		newFunc: newFunc,
		reset:   resetFunc,
	}
	p.pool.New = func() any {
		p.news.Add(1)
		return newFunc()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	p.gets.Add(1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool.
func (p *Pool[T]) Put(obj T) {
	p.puts.Add(1)
	if p.reset != nil {
		p.resets.Add(1)
		p.reset(&obj)
	}
	p.pool.Put(obj)
}

// Stats returns pool statistics.
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Gets:   p.gets.Load(),
		Puts:   p.puts.Load(),
		News:   p.news.Load(),
		Resets: p.resets.Load(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Gets   int64 `json:"gets"`
	Puts   int64 `json:"puts"`
	News   int64 `json:"news"`
	Resets int64 `json:"resets"`
}

// HitRate returns the cache hit rate.
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

// Outstanding returns the number of objects obtained but not yet returned.
func (s PoolStats) Outstanding() int64 {
	return s.Gets - s.Puts
}

// BufferProvider hands out byte buffers and takes them back once the owner
// is done with them.
type BufferProvider interface {
	Get() *bytes.Buffer
	Put(*bytes.Buffer)
}

// BufferPool is a BufferProvider backed by Pool.
type BufferPool struct {
	*Pool[*bytes.Buffer]
	maxRetained int
}

// NewBufferPool creates a buffer pool whose fresh buffers start with
// initialSize capacity. Buffers that grew beyond maxRetained bytes are
// dropped on Put instead of being kept alive; zero disables the limit.
func NewBufferPool(initialSize, maxRetained int) *BufferPool {
	if initialSize <= 0 {
		initialSize = 4096
	}
	return &BufferPool{
		Pool: NewPool(
			func() *bytes.Buffer {
				return bytes.NewBuffer(make([]byte, 0, initialSize))
			},
			func(b **bytes.Buffer) {
				(*b).Reset()
			},
		),
		maxRetained: maxRetained,
	}
}

// Put returns a buffer to the pool. Nil buffers are ignored.
func (p *BufferPool) Put(b *bytes.Buffer) {
	if b == nil {
		return
	}
	if p.maxRetained > 0 && b.Cap() > p.maxRetained {
		p.puts.Add(1)
		return
	}
	p.Pool.Put(b)
}

// ByteBufferPool is the process-wide default buffer provider.
var ByteBufferPool = NewBufferPool(4096, 4<<20)
