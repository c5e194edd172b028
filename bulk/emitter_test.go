package bulk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/codec"
	"github.com/BaSui01/bulkflow/types"
)

type batchSink struct {
	mu      sync.Mutex
	sizes   []int
	accept  bool
	batches chan *Batch
}

func newBatchSink(accept bool) *batchSink {
	return &batchSink{accept: accept, batches: make(chan *Batch, 100)}
}

func (s *batchSink) listen(b *Batch) bool {
	s.mu.Lock()
	s.sizes = append(s.sizes, b.Size())
	s.mu.Unlock()
	s.batches <- b
	_ = b.Completed()
	return s.accept
}

func (s *batchSink) Sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.sizes...)
}

func builderFactory() *Builder { return newTestBuilder(codec.JSON{}) }

func TestEmitter_FlushesOnSize(t *testing.T) {
	sink := newBatchSink(true)
	e, err := NewEmitter(EmitterConfig{MaxBatchSize: 3, DeliveryInterval: time.Hour, QueueSize: 10}, builderFactory, sink.listen, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 6; i++ {
		require.NoError(t, e.Add(context.Background(), NewItem("logs", []byte(`{}`))))
	}

	for i := 0; i < 2; i++ {
		select {
		case <-sink.batches:
		case <-time.After(time.Second):
			t.Fatal("batch not emitted")
		}
	}
	assert.Equal(t, []int{3, 3}, sink.Sizes())
}

func TestEmitter_FlushesOnInterval(t *testing.T) {
	sink := newBatchSink(true)
	e, err := NewEmitter(EmitterConfig{MaxBatchSize: 100, DeliveryInterval: 20 * time.Millisecond}, builderFactory, sink.listen, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Add(context.Background(), NewItem("logs", []byte(`{}`))))

	select {
	case b := <-sink.batches:
		assert.NotEmpty(t, b.ID())
	case <-time.After(time.Second):
		t.Fatal("interval flush did not happen")
	}
	assert.Equal(t, []int{1}, sink.Sizes())
}

func TestEmitter_CloseFlushesRemainder(t *testing.T) {
	sink := newBatchSink(false)
	e, err := NewEmitter(EmitterConfig{MaxBatchSize: 100, DeliveryInterval: time.Hour}, builderFactory, sink.listen, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, e.Add(context.Background(), NewItem("logs", []byte(`{}`))))
	}
	e.Close()
	e.Close()

	assert.Equal(t, []int{5}, sink.Sizes())
	stats := e.Stats()
	assert.Equal(t, int64(5), stats.Submitted)
	assert.Equal(t, int64(1), stats.Batches)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, 5.0, stats.AverageBatchSize())

	assert.ErrorIs(t, e.Add(context.Background(), NewItem("logs", nil)), ErrEmitterClosed)
}

func TestEmitter_AddHonoursContext(t *testing.T) {
	block := make(chan struct{})
	listener := func(b *Batch) bool {
		<-block
		_ = b.Completed()
		return true
	}
	e, err := NewEmitter(EmitterConfig{MaxBatchSize: 1, DeliveryInterval: time.Hour, QueueSize: 1}, builderFactory, listener, zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	defer close(block)

	// 第一条被取走并阻塞在 listener，第二条占满队列
	require.NoError(t, e.Add(context.Background(), NewItem("logs", nil)))
	require.Eventually(t, func() bool { return e.Stats().Queued == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, e.Add(context.Background(), NewItem("logs", nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Add(ctx, NewItem("logs", nil)), context.DeadlineExceeded)
}

func TestNewEmitter_ValidatesBuilderEagerly(t *testing.T) {
	_, err := NewEmitter(DefaultEmitterConfig(), NewBuilder, func(*Batch) bool { return true }, zap.NewNop())
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))

	_, err = NewEmitter(DefaultEmitterConfig(), builderFactory, nil, zap.NewNop())
	assert.Error(t, err)
}
