package bulk

import (
	"bytes"
	"sync"

	"github.com/BaSui01/bulkflow/internal/pool"
)

// Source is the raw payload of one document. Release returns its storage and
// is called exactly once by the owning batch.
type Source interface {
	Bytes() []byte
	Release()
}

// BytesSource is an unpooled payload; Release is a no-op.
type BytesSource []byte

// Bytes implements Source.
func (s BytesSource) Bytes() []byte { return s }

// Release implements Source.
func (BytesSource) Release() {}

// BufferSource holds a payload in a pooled buffer.
type BufferSource struct {
	mu   sync.Mutex
	buf  *bytes.Buffer
	pool pool.BufferProvider
}

// NewBufferSource copies data into a buffer obtained from p.
func NewBufferSource(p pool.BufferProvider, data []byte) *BufferSource {
	buf := p.Get()
	buf.Write(data)
	return &BufferSource{buf: buf, pool: p}
}

// Bytes returns the payload, or nil after Release.
func (s *BufferSource) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	return s.buf.Bytes()
}

// Release returns the buffer to its pool. Later calls do nothing.
func (s *BufferSource) Release() {
	s.mu.Lock()
	buf := s.buf
	s.buf = nil
	s.mu.Unlock()

	if buf != nil {
		s.pool.Put(buf)
	}
}

// Item is one document queued for bulk delivery. Index, Type and ID form the
// action/metadata line; empty Index or Type fall back to the builder defaults.
type Item struct {
	Index  string
	Type   string
	ID     string
	Source Source
}

// NewItem creates an item targeting index with an unpooled payload.
func NewItem(index string, payload []byte) *Item {
	return &Item{Index: index, Source: BytesSource(payload)}
}

// Payload returns the document bytes.
func (i *Item) Payload() []byte {
	if i.Source == nil {
		return nil
	}
	return i.Source.Bytes()
}

func (i *Item) release() {
	if i.Source != nil {
		i.Source.Release()
	}
}

func (i *Item) sameTarget(other *Item) bool {
	return i.Index == other.Index && i.Type == other.Type
}
