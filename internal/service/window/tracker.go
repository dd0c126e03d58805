package window

import (
	"fmt"
	"sort"
	"sync"
)

// Tracker keeps the most recent feature vectors per instrument in fixed
// rings, so a full model window is available as soon as enough events
// arrived.
type Tracker struct {
	mu     sync.RWMutex
	length int
	dim    int
	rings  map[string]*ring
}

type ring struct {
	buf   [][]float64
	head  int
	count int
}

// NewTracker creates a tracker holding length vectors of width dim per
// instrument.
func NewTracker(length, dim int) (*Tracker, error) {
	if length <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %d", length)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("feature dim must be positive, got %d", dim)
	}
	return &Tracker{
		length: length,
		dim:    dim,
		rings:  make(map[string]*ring),
	}, nil
}

// Length returns the configured window length.
func (t *Tracker) Length() int { return t.length }

// Dim returns the configured feature width.
func (t *Tracker) Dim() int { return t.dim }

// Push appends a vector to the instrument's ring, evicting the oldest entry
// once the ring is full. The vector is copied. Returns true when the ring
// is full after the push.
func (t *Tracker) Push(instrument string, vec []float64) (bool, error) {
	if len(vec) != t.dim {
		return false, fmt.Errorf("vector width %d, want %d", len(vec), t.dim)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rings[instrument]
	if !ok {
		r = &ring{buf: make([][]float64, t.length)}
		t.rings[instrument] = r
	}

	cp := make([]float64, t.dim)
	copy(cp, vec)
	r.buf[r.head] = cp
	r.head = (r.head + 1) % t.length
	if r.count < t.length {
		r.count++
	}
	return r.count == t.length, nil
}

// Full reports whether the instrument has a complete window.
func (t *Tracker) Full(instrument string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rings[instrument]
	return ok && r.count == t.length
}

// Len returns how many vectors the instrument has accumulated.
func (t *Tracker) Len(instrument string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rings[instrument]; ok {
		return r.count
	}
	return 0
}

// Window returns a copy of the instrument's window ordered oldest first,
// or false when the ring is not yet full.
func (t *Tracker) Window(instrument string) ([][]float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.rings[instrument]
	if !ok || r.count < t.length {
		return nil, false
	}

	out := make([][]float64, t.length)
	for i := 0; i < t.length; i++ {
		src := r.buf[(r.head+i)%t.length]
		row := make([]float64, t.dim)
		copy(row, src)
		out[i] = row
	}
	return out, true
}

// Instruments lists tracked instruments in sorted order.
func (t *Tracker) Instruments() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.rings))
	for k := range t.rings {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reset drops the instrument's accumulated window.
func (t *Tracker) Reset(instrument string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rings, instrument)
}
