package pipeline

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/biomirror/biomirror/pkg/types"
)

// RateEstimator converts a PPG waveform into beats per minute.
//
// The window is a fixed-size ring; once full, each push overwrites the
// oldest entry. Window statistics only need the set of values, not their
// order, so min/max/mean run directly over the backing slice.
type RateEstimator struct {
	p Params

	values []float64 // ring of raw PPG values
	next   int       // index the next push writes to
	n      int       // number of valid entries

	lastBeat time.Time
	hasBeat  bool
	rate     int
}

// WindowStats summarises the current PPG window.
type WindowStats struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	Amplitude float64 `json:"amplitude"`
	Count     int     `json:"count"`
}

// NewRateEstimator returns an estimator with an empty window and the
// configured resting rate.
func NewRateEstimator(p Params) *RateEstimator {
	return &RateEstimator{
		p:      p,
		values: make([]float64, p.WindowSize),
		rate:   p.InitialRate,
	}
}

// Update pushes one PPG value and returns the current heart rate.
//
// The result is unavailable while the window holds fewer than MinSamples
// values or its amplitude is below MinAmplitude. An unavailable result never
// changes the held rate, so Rate() keeps the last accepted value.
func (r *RateEstimator) Update(ppg float64, now time.Time) types.HeartRate {
	r.push(ppg)

	if r.n < r.p.MinSamples {
		return types.HeartRate{}
	}

	st := r.Stats()
	if st.Amplitude < r.p.MinAmplitude {
		return types.HeartRate{}
	}

	isPeak := ppg > st.Mean+st.Amplitude*r.p.PeakFraction
	if isPeak && (!r.hasBeat || now.Sub(r.lastBeat) >= r.p.Refractory) {
		if r.hasBeat {
			ms := float64(now.Sub(r.lastBeat)) / float64(time.Millisecond)
			instant := int(math.Round(60000 / ms))
			if instant > r.p.MinRate && instant < r.p.MaxRate {
				r.rate = instant
			}
		}
		// A rejected rate still re-arms the interval so one erratic beat
		// cannot skew the next measurement.
		r.lastBeat = now
		r.hasBeat = true
	}

	return types.BPM(r.rate)
}

// Rate returns the held heart rate, available or not.
func (r *RateEstimator) Rate() int { return r.rate }

// LastBeat returns the time of the last accepted peak.
func (r *RateEstimator) LastBeat() (time.Time, bool) { return r.lastBeat, r.hasBeat }

// Stats computes min, max, amplitude and mean over the current window.
func (r *RateEstimator) Stats() WindowStats {
	if r.n == 0 {
		return WindowStats{}
	}
	vals := r.values[:r.n]
	st := WindowStats{
		Min:   floats.Min(vals),
		Max:   floats.Max(vals),
		Mean:  floats.Sum(vals) / float64(r.n),
		Count: r.n,
	}
	st.Amplitude = st.Max - st.Min
	return st
}

// Reset empties the window and restores the resting rate.
func (r *RateEstimator) Reset() {
	r.next, r.n = 0, 0
	r.lastBeat, r.hasBeat = time.Time{}, false
	r.rate = r.p.InitialRate
}

func (r *RateEstimator) push(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % len(r.values)
	if r.n < len(r.values) {
		r.n++
	}
}
