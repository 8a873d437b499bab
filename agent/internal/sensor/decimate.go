package sensor

import "sync/atomic"

// Decimator keeps frames whose sequence number is a multiple of its factor.
// The factor can be changed while frames flow.
type Decimator struct {
	factor atomic.Int64
}

// NewDecimator returns a Decimator keeping every nth frame. n <= 1 keeps all.
func NewDecimator(n int) *Decimator {
	d := &Decimator{}
	d.SetFactor(n)
	return d
}

// SetFactor replaces the decimation factor.
func (d *Decimator) SetFactor(n int) {
	if n < 1 {
		n = 1
	}
	d.factor.Store(int64(n))
}

// Factor returns the current decimation factor.
func (d *Decimator) Factor() int { return int(d.factor.Load()) }

// Keep reports whether the frame with sequence number seq is forwarded.
func (d *Decimator) Keep(seq int) bool {
	n := d.factor.Load()
	s := int64(seq) % n
	return s == 0
}
