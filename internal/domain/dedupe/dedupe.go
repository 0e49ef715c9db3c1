// Package dedupe tracks telemetry fingerprints so resubmitted samples are
// evaluated again but persisted only once.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/okian/flightguard/internal/domain/model"
)

// Deduper records seen fingerprints.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a later submission is persisted again. Used when
	// a sample was recorded but could not be queued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// Fingerprint identifies a sample by submitter and capture time. Two
// submissions with the same pilot, stream and timestamp are the same sample.
func Fingerprint(s model.TelemetrySample) string {
	var b strings.Builder
	b.Grow(len(s.PilotID) + len(s.StreamID) + 24)
	b.WriteString(s.PilotID)
	b.WriteByte('|')
	b.WriteString(s.StreamID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(s.Timestamp.UnixNano(), 10))
	return b.String()
}

// inMemoryDeduper keeps fingerprints in a map with FIFO eviction when bounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // oldest at front
	maxSize int        // <= 0 means unbounded
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			delete(d.seen, oldest.Value.(string))
			d.order.Remove(oldest)
		}
	}
	d.seen[id] = d.order.PushBack(id)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
