package bulk

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/BaSui01/bulkflow/codec"
	"github.com/BaSui01/bulkflow/internal/pool"
	"github.com/BaSui01/bulkflow/transport"
	"github.com/BaSui01/bulkflow/types"
)

// ErrBatchReleased is returned when a batch is used after Completed.
var ErrBatchReleased = types.NewError(types.ErrBatchReleased, "batch already released")

// Batch is a sealed, ordered set of items serialized into one bulk request.
// It implements transport.Request.
type Batch struct {
	id     string
	uri    string
	mode   Mode
	action string

	serializer   codec.Serializer
	deserializer codec.Deserializer
	buffers      pool.BufferProvider

	mu         sync.Mutex
	items      []*Item
	buffer     *bytes.Buffer
	serialized bool
	released   bool
}

// actionMeta is the metadata object of an action line.
type actionMeta struct {
	Index string `json:"_index,omitempty"`
	Type  string `json:"_type,omitempty"`
	ID    string `json:"_id,omitempty"`
}

var _ transport.Request = (*Batch)(nil)

// ID returns the batch identifier used for log correlation.
func (b *Batch) ID() string { return b.id }

// URI implements transport.Request.
func (b *Batch) URI() string { return b.uri }

// HTTPMethod implements transport.Request.
func (b *Batch) HTTPMethod() string { return http.MethodPost }

// Mode returns the URI mode the batch was built with.
func (b *Batch) Mode() Mode { return b.mode }

// Items returns the items in insertion order. The slice is a copy; the items
// are still owned by the batch.
func (b *Batch) Items() []*Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Item(nil), b.items...)
}

// Size returns the number of items.
func (b *Batch) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Decoder returns the decoder for bulk responses.
func (b *Batch) Decoder() transport.ResponseDecoder {
	return ResultDecoder{Deserializer: b.deserializer}
}

// Serialize writes the newline-delimited payload into the batch buffer once
// and returns a reader over it. Each item contributes an action line and its
// payload, both newline terminated.
func (b *Batch) Serialize() (io.Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil, ErrBatchReleased
	}
	if b.serialized {
		return bytes.NewReader(b.buffer.Bytes()), nil
	}

	if err := b.writeTo(b.buffer); err != nil {
		b.buffer.Reset()
		return nil, err
	}
	b.serialized = true
	return bytes.NewReader(b.buffer.Bytes()), nil
}

func (b *Batch) writeTo(buf *bytes.Buffer) error {
	if len(b.items) == 0 {
		return nil
	}

	first := b.items[0]
	uniform := true
	for _, item := range b.items[1:] {
		if item.sameTarget(first) {
			continue
		}
		if b.mode == ModeIndexPerBatch {
			return mixedTargetError(first, item)
		}
		uniform = false
		break
	}
	for _, item := range b.items {
		if item.ID != "" {
			uniform = false
			break
		}
	}

	// 同一目标且无文档 ID 时，元数据行只序列化一次并复用
	var shared []byte
	if uniform {
		line, err := b.actionLine(first)
		if err != nil {
			return err
		}
		shared = line
	}

	for _, item := range b.items {
		line := shared
		if line == nil {
			var err error
			if line, err = b.actionLine(item); err != nil {
				return err
			}
		}
		buf.Write(line)
		buf.WriteByte('\n')
		buf.Write(item.Payload())
		buf.WriteByte('\n')
	}
	return nil
}

func (b *Batch) actionLine(item *Item) ([]byte, error) {
	line, err := b.serializer.Marshal(map[string]actionMeta{
		b.action: {Index: item.Index, Type: item.Type, ID: item.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("serialize action line: %w", err)
	}
	return line, nil
}

func mixedTargetError(first, other *Item) error {
	if first.Index != other.Index {
		return types.NewError(types.ErrMixedTarget,
			fmt.Sprintf("mixed index in batch: %q and %q", first.Index, other.Index))
	}
	return types.NewError(types.ErrMixedTarget,
		fmt.Sprintf("mixed type in batch: %q and %q", first.Type, other.Type))
}

// Completed releases every item and the output buffer. It must be called
// exactly once per batch; later calls return ErrBatchReleased.
func (b *Batch) Completed() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return ErrBatchReleased
	}
	b.released = true

	for _, item := range b.items {
		item.release()
	}
	b.items = nil

	b.buffers.Put(b.buffer)
	b.buffer = nil
	return nil
}

// Released reports whether Completed has been called.
func (b *Batch) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}
