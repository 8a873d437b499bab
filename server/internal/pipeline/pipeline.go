package pipeline

import "github.com/biomirror/biomirror/pkg/types"

// Pipeline owns all signal-processing state for one live stream.
//
// Calls must be serialised by the caller; Pipeline holds no lock.
type Pipeline struct {
	params    Params
	rate      *RateEstimator
	baselines *BaselineTracker
	scorer    *StabilityScorer
	blur      VisualBlur
	processed uint64
}

// State is a read-only copy of the pipeline's trackers.
type State struct {
	RefEDA      float64 `json:"ref_eda"`
	RefPZT      float64 `json:"ref_pzt"`
	RefBPM      float64 `json:"ref_bpm"`
	HeartRate   int     `json:"heart_rate"`
	SmoothScore float64 `json:"smooth_score"`
	TargetBlur  float64 `json:"target_blur"`
	VisualBlur  float64 `json:"visual_blur"`
	Processed   uint64  `json:"processed"`

	// Window describes the PPG values the rate estimator currently holds.
	Window WindowStats `json:"ppg_window"`
	// Breakdown splits the latest unsmoothed score by channel.
	Breakdown Output `json:"score_breakdown"`
}

// New builds a pipeline at neutral state.
func New(p Params) *Pipeline {
	return &Pipeline{
		params:    p,
		rate:      NewRateEstimator(p),
		baselines: NewBaselineTracker(p),
		scorer:    NewStabilityScorer(p),
		blur:      NewVisualBlur(p.VisualRate),
	}
}

// Params returns the tuning in use.
func (p *Pipeline) Params() Params { return p.params }

// Calibrate seeds the EDA and PZT references directly from s. No score, rate
// or output is produced. prevPzt follows the sample too, so the first running
// sample does not see a slope from 0.
func (p *Pipeline) Calibrate(s types.Sample) {
	p.baselines.Seed(ChannelEDA, s.EDA)
	p.baselines.Seed(ChannelPZT, s.PZT)
	p.scorer.ObservePZT(s.PZT)
}

// ProcessSample runs one sample through rate estimation, baselines, fusion
// and the response mapper, and returns the output tuple.
//
// Non-finite inputs are not rejected; they propagate through the filters.
func (p *Pipeline) ProcessSample(s types.Sample) types.Output {
	hr := p.rate.Update(s.PPG, s.Timestamp)

	varEDA := p.baselines.Update(ChannelEDA, s.EDA)
	varPZT := p.baselines.Update(ChannelPZT, s.PZT)
	// The held rate feeds the BPM baseline even while the display shows
	// "unavailable".
	varBPM := p.baselines.UpdateRate(float64(p.rate.Rate()))

	score := p.scorer.Update(varEDA, varBPM, s.PZT)
	target := TargetBlur(score, p.params)
	p.blur.SetTarget(target)
	p.processed++

	return types.Output{
		HeartRate:           hr,
		EDAVariation:        varEDA,
		RespVariation:       varPZT,
		StabilityScore:      score,
		DistortionIntensity: target,
		PPG:                 s.PPG,
		Timestamp:           s.Timestamp,
	}
}

// TickDisplay advances the displayed distortion by one frame.
func (p *Pipeline) TickDisplay() float64 { return p.blur.Tick() }

// VisualBlur returns the currently displayed distortion.
func (p *Pipeline) VisualBlur() float64 { return p.blur.Current() }

// Reset returns every tracker to its neutral value.
func (p *Pipeline) Reset() {
	p.rate.Reset()
	p.baselines.Reset()
	p.scorer.Reset()
	p.blur.Reset()
	p.processed = 0
}

// State returns a copy of the trackers.
func (p *Pipeline) State() State {
	return State{
		RefEDA:      p.baselines.Ref(ChannelEDA),
		RefPZT:      p.baselines.Ref(ChannelPZT),
		RefBPM:      p.baselines.RateRef(),
		HeartRate:   p.rate.Rate(),
		SmoothScore: p.scorer.Score(),
		TargetBlur:  p.blur.Target(),
		VisualBlur:  p.blur.Current(),
		Processed:   p.processed,
		Window:      p.rate.Stats(),
		Breakdown:   p.scorer.Last(),
	}
}
