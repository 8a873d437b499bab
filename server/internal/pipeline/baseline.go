package pipeline

// Channel identifies a raw sensor channel tracked by a baseline.
type Channel int

const (
	ChannelEDA Channel = iota
	ChannelPZT
)

func (c Channel) String() string {
	switch c {
	case ChannelEDA:
		return "eda"
	case ChannelPZT:
		return "pzt"
	default:
		return "unknown"
	}
}

// Baseline is a first-order exponential tracker of a channel's resting level.
type Baseline struct {
	alpha float64
	ref   float64
}

// NewBaseline returns a tracker starting at initial.
func NewBaseline(alpha, initial float64) Baseline {
	return Baseline{alpha: alpha, ref: initial}
}

// Update folds x into the reference and returns x minus the new reference.
func (b *Baseline) Update(x float64) float64 {
	b.ref = b.ref*(1-b.alpha) + x*b.alpha
	return x - b.ref
}

// Seed sets the reference directly.
func (b *Baseline) Seed(x float64) { b.ref = x }

// Ref returns the current reference.
func (b *Baseline) Ref() float64 { return b.ref }

// BaselineTracker holds the EDA, PZT and heart-rate references.
type BaselineTracker struct {
	eda, pzt, bpm Baseline
	initialBPM    float64
}

// NewBaselineTracker returns references at their neutral values: 0 for the
// raw channels and the resting rate for BPM.
func NewBaselineTracker(p Params) *BaselineTracker {
	t := &BaselineTracker{initialBPM: float64(p.InitialRate)}
	t.eda = NewBaseline(p.AlphaEDA, 0)
	t.pzt = NewBaseline(p.AlphaPZT, 0)
	t.bpm = NewBaseline(p.AlphaBPM, t.initialBPM)
	return t
}

// Update advances the channel reference and returns the variation.
func (t *BaselineTracker) Update(ch Channel, raw float64) float64 {
	return t.channel(ch).Update(raw)
}

// UpdateRate advances the heart-rate reference and returns the variation.
func (t *BaselineTracker) UpdateRate(rate float64) float64 {
	return t.bpm.Update(rate)
}

// Seed overwrites a channel reference, used during calibration.
func (t *BaselineTracker) Seed(ch Channel, raw float64) {
	t.channel(ch).Seed(raw)
}

// Ref returns the current reference of a raw channel.
func (t *BaselineTracker) Ref(ch Channel) float64 { return t.channel(ch).Ref() }

// RateRef returns the current heart-rate reference.
func (t *BaselineTracker) RateRef() float64 { return t.bpm.Ref() }

// Reset returns every reference to its neutral value.
func (t *BaselineTracker) Reset() {
	t.eda.Seed(0)
	t.pzt.Seed(0)
	t.bpm.Seed(t.initialBPM)
}

func (t *BaselineTracker) channel(ch Channel) *Baseline {
	if ch == ChannelPZT {
		return &t.pzt
	}
	return &t.eda
}
