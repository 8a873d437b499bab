package pipeline

import "math"

// Input holds the three per-sample signals fused into the instability score.
type Input struct {
	// VariationEDA is the EDA residual against its baseline.
	VariationEDA float64

	// VariationBPM is the heart rate residual against its baseline.
	VariationBPM float64

	// DeltaPZT is |pzt - prevPzt|, the respiration slope.
	DeltaPZT float64
}

// Output is the result of one fusion step before smoothing.
type Output struct {
	Global float64 `json:"global"`

	// Per-channel contributions.
	EDA float64 `json:"eda"`
	BPM float64 `json:"bpm"`
	PZT float64 `json:"pzt"`
}

// Fuse computes the unsmoothed instability score:
//
//	eda    = |VariationEDA| * WeightEDA
//	bpm    = |VariationBPM| * WeightBPM
//	pzt    = max(0, DeltaPZT - PZTDeadZone) * WeightPZT
//	global = eda + bpm + pzt
//
// Breathing slopes below the dead zone contribute nothing.
func Fuse(in Input, p Params) Output {
	out := Output{
		EDA: math.Abs(in.VariationEDA) * p.WeightEDA,
		BPM: math.Abs(in.VariationBPM) * p.WeightBPM,
		PZT: math.Max(0, in.DeltaPZT-p.PZTDeadZone) * p.WeightPZT,
	}
	out.Global = out.EDA + out.BPM + out.PZT
	return out
}

// StabilityScorer folds fused scores into smoothScore and tracks prevPzt.
type StabilityScorer struct {
	p       Params
	prevPZT float64
	smooth  float64
	last    Output
}

// NewStabilityScorer returns a scorer with prevPzt and smoothScore at 0.
func NewStabilityScorer(p Params) *StabilityScorer {
	return &StabilityScorer{p: p}
}

// Update scores one sample and returns the new smoothScore. prevPzt is
// overwritten on every call.
func (s *StabilityScorer) Update(varEDA, varBPM, pzt float64) float64 {
	delta := math.Abs(pzt - s.prevPZT)
	s.prevPZT = pzt

	s.last = Fuse(Input{VariationEDA: varEDA, VariationBPM: varBPM, DeltaPZT: delta}, s.p)
	s.smooth = s.smooth*(1-s.p.ScoreSmoothing) + s.last.Global*s.p.ScoreSmoothing
	return s.smooth
}

// ObservePZT records a respiration value without scoring it.
func (s *StabilityScorer) ObservePZT(pzt float64) { s.prevPZT = pzt }

// Score returns the current smoothScore.
func (s *StabilityScorer) Score() float64 { return s.smooth }

// Last returns the breakdown of the most recent Update.
func (s *StabilityScorer) Last() Output { return s.last }

// Reset restores prevPzt and smoothScore to 0.
func (s *StabilityScorer) Reset() {
	s.prevPZT, s.smooth = 0, 0
	s.last = Output{}
}
