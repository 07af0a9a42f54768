package telemetry

import (
	"sync"

	"github.com/orinctl/strapd/internal/models"
)

// DefaultRecorderSize bounds the in-memory record ring.
const DefaultRecorderSize = 256

// Recorder keeps the most recent records in a ring buffer. It backs the
// status surface and host-side tests.
type Recorder struct {
	mu      sync.Mutex
	size    int
	records []models.Record
	next    int
	full    bool
}

// NewRecorder returns a recorder sized for the provided record count; zero
// or negative selects DefaultRecorderSize.
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = DefaultRecorderSize
	}
	return &Recorder{
		size:    size,
		records: make([]models.Record, size),
	}
}

// Emit stores the record, evicting the oldest when full.
func (r *Recorder) Emit(record models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[r.next] = record
	r.next++
	if r.next >= r.size {
		r.next = 0
		r.full = true
	}
}

// Records returns the buffered records in chronological order.
func (r *Recorder) Records() []models.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]models.Record, r.next)
		copy(out, r.records[:r.next])
		return out
	}

	out := make([]models.Record, r.size)
	copy(out, r.records[r.next:])
	copy(out[r.size-r.next:], r.records[:r.next])
	return out
}

// Latest returns the most recent record, if any.
func (r *Recorder) Latest() (models.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.next == 0 && !r.full {
		return models.Record{}, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx = r.size - 1
	}
	return r.records[idx], true
}

// CountKind returns how many buffered records match kind.
func (r *Recorder) CountKind(kind models.EventKind) int {
	count := 0
	for _, record := range r.Records() {
		if record.Kind == kind {
			count++
		}
	}
	return count
}

// OfKind returns the buffered records matching kind, in order.
func (r *Recorder) OfKind(kind models.EventKind) []models.Record {
	var out []models.Record
	for _, record := range r.Records() {
		if record.Kind == kind {
			out = append(out, record)
		}
	}
	return out
}
