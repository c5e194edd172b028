package bulk

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/BaSui01/bulkflow/codec"
	"github.com/BaSui01/bulkflow/internal/pool"
	"github.com/BaSui01/bulkflow/types"
)

// Mode selects how the bulk URI is derived from the batch contents.
type Mode int

const (
	// ModeMixed sends every batch to "_bulk"; items may target any index.
	ModeMixed Mode = iota
	// ModeIndexPerBatch sends to "<index>/_bulk"; all items must share one
	// index and type.
	ModeIndexPerBatch
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeMixed:
		return "mixed"
	case ModeIndexPerBatch:
		return "index-per-batch"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the configuration name of a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mixed":
		return ModeMixed, nil
	case "index-per-batch":
		return ModeIndexPerBatch, nil
	default:
		return 0, types.NewConfigurationError("unknown bulk mode %q", s)
	}
}

// Bulk actions.
const (
	ActionIndex  = "index"
	ActionCreate = "create"
)

// ErrBuilderSealed is returned by Add after Build.
var ErrBuilderSealed = errors.New("batch builder is sealed")

// Builder collects items in acceptance order and seals them into a Batch.
// Add is safe for concurrent producers.
type Builder struct {
	mu     sync.Mutex
	items  []*Item
	sealed bool

	buffers      pool.BufferProvider
	serializer   codec.Serializer
	deserializer codec.Deserializer

	mode       Mode
	action     string
	index      string
	docType    string
	filterPath string
}

// NewBuilder creates a builder in ModeMixed with the index action.
func NewBuilder() *Builder {
	return &Builder{mode: ModeMixed, action: ActionIndex}
}

// WithBuffer sets the provider of the batch output buffer.
func (b *Builder) WithBuffer(p pool.BufferProvider) *Builder {
	b.buffers = p
	return b
}

// WithSerializer sets the action line serializer.
func (b *Builder) WithSerializer(s codec.Serializer) *Builder {
	b.serializer = s
	return b
}

// WithDeserializer sets the response deserializer.
func (b *Builder) WithDeserializer(d codec.Deserializer) *Builder {
	b.deserializer = d
	return b
}

// WithMode sets the URI mode.
func (b *Builder) WithMode(m Mode) *Builder {
	b.mode = m
	return b
}

// WithAction sets the bulk action ("index" or "create").
func (b *Builder) WithAction(action string) *Builder {
	b.action = action
	return b
}

// WithIndex sets the default index for items that carry none.
func (b *Builder) WithIndex(index string) *Builder {
	b.index = index
	return b
}

// WithType sets the default mapping type for items that carry none.
func (b *Builder) WithType(docType string) *Builder {
	b.docType = docType
	return b
}

// WithFilterPath adds a filter_path query parameter to the URI.
func (b *Builder) WithFilterPath(filterPath string) *Builder {
	b.filterPath = filterPath
	return b
}

// Add appends an item. It fails once the builder is sealed.
func (b *Builder) Add(item *Item) error {
	if item == nil {
		return errors.New("nil item")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrBuilderSealed
	}
	b.items = append(b.items, item)
	return nil
}

// Len returns the number of accepted items.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Build validates the collaborators, seals the item list and returns the
// batch. Items are owned by the batch from here on.
func (b *Builder) Build() (*Batch, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil, ErrBuilderSealed
	}
	b.sealed = true

	items := b.items
	b.items = nil
	for _, item := range items {
		if item.Index == "" {
			item.Index = b.index
		}
		if item.Type == "" {
			item.Type = b.docType
		}
	}

	return &Batch{
		id:           uuid.NewString(),
		items:        items,
		uri:          b.uri(items),
		mode:         b.mode,
		action:       b.action,
		buffer:       b.buffers.Get(),
		buffers:      b.buffers,
		serializer:   b.serializer,
		deserializer: b.deserializer,
	}, nil
}

func (b *Builder) validate() error {
	switch {
	case b.buffers == nil:
		return types.NewConfigurationError("batch buffer provider must be set")
	case b.serializer == nil:
		return types.NewConfigurationError("batch serializer must be set")
	case b.deserializer == nil:
		return types.NewConfigurationError("batch deserializer must be set")
	case b.action != ActionIndex && b.action != ActionCreate:
		return types.NewConfigurationError("unsupported bulk action %q", b.action)
	}
	return nil
}

// uri derives "_bulk" or "<index>/_bulk", optionally with filter_path.
func (b *Builder) uri(items []*Item) string {
	path := "_bulk"
	if b.mode == ModeIndexPerBatch {
		index := b.index
		if len(items) > 0 && items[0].Index != "" {
			index = items[0].Index
		}
		if index != "" {
			path = url.PathEscape(index) + "/_bulk"
		}
	}
	if b.filterPath != "" {
		path += "?filter_path=" + url.QueryEscape(b.filterPath)
	}
	return path
}
