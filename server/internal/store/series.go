package store

import (
	"sync"

	"github.com/biomirror/biomirror/pkg/types"
)

// DefaultSeriesLength is the number of points kept for charts.
const DefaultSeriesLength = 150

// Series is a thread-safe fixed-size ring of output tuples.
type Series struct {
	mu    sync.RWMutex
	buf   []types.Output
	next  int
	n     int
	total uint64
}

// NewSeries returns an empty series holding at most length points.
func NewSeries(length int) *Series {
	if length <= 0 {
		length = DefaultSeriesLength
	}
	return &Series{buf: make([]types.Output, length)}
}

// Record appends out, overwriting the oldest point once full.
func (s *Series) Record(out types.Output) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf[s.next] = out
	s.next = (s.next + 1) % len(s.buf)
	if s.n < len(s.buf) {
		s.n++
	}
	s.total++
}

// Points returns the held points, oldest first.
func (s *Series) Points() []types.Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Output, 0, s.n)
	start := (s.next - s.n + len(s.buf)) % len(s.buf)
	for i := 0; i < s.n; i++ {
		out = append(out, s.buf[(start+i)%len(s.buf)])
	}
	return out
}

// Latest returns the most recent point.
func (s *Series) Latest() (types.Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.n == 0 {
		return types.Output{}, false
	}
	return s.buf[(s.next-1+len(s.buf))%len(s.buf)], true
}

// Len returns the number of held points.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.n
}

// Total returns how many points were ever recorded.
func (s *Series) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Cap returns the maximum number of held points.
func (s *Series) Cap() int { return len(s.buf) }
