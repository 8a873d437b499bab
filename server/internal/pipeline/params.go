package pipeline

import (
	"fmt"
	"time"
)

// Params holds every tuning constant of the pipeline.
// DefaultParams returns the reference values; the server config may override
// individual fields.
type Params struct {
	// Rate estimator.
	WindowSize   int           `yaml:"window_size"`
	MinSamples   int           `yaml:"min_samples"`
	MinAmplitude float64       `yaml:"min_amplitude"`
	PeakFraction float64       `yaml:"peak_fraction"`
	Refractory   time.Duration `yaml:"refractory"`
	MinRate      int           `yaml:"min_rate"` // exclusive
	MaxRate      int           `yaml:"max_rate"` // exclusive
	InitialRate  int           `yaml:"initial_rate"`

	// Baselines.
	AlphaEDA float64 `yaml:"alpha_eda"`
	AlphaPZT float64 `yaml:"alpha_pzt"`
	AlphaBPM float64 `yaml:"alpha_bpm"`

	// Stability scorer.
	WeightEDA      float64 `yaml:"weight_eda"`
	WeightBPM      float64 `yaml:"weight_bpm"`
	WeightPZT      float64 `yaml:"weight_pzt"`
	PZTDeadZone    float64 `yaml:"pzt_dead_zone"`
	ScoreSmoothing float64 `yaml:"score_smoothing"` // weight of the new score

	// Response mapper.
	Tolerance  float64 `yaml:"tolerance"`
	BlurGain   float64 `yaml:"blur_gain"`
	MaxBlur    float64 `yaml:"max_blur"`
	VisualRate float64 `yaml:"visual_rate"`
}

// DefaultParams returns the reference tuning.
func DefaultParams() Params {
	return Params{
		WindowSize:   50,
		MinSamples:   11,
		MinAmplitude: 20,
		PeakFraction: 0.3,
		Refractory:   400 * time.Millisecond,
		MinRate:      40,
		MaxRate:      160,
		InitialRate:  70,

		AlphaEDA: 0.05,
		AlphaPZT: 0.10,
		AlphaBPM: 0.02,

		WeightEDA:      2,
		WeightBPM:      1.5,
		WeightPZT:      0.5,
		PZTDeadZone:    10,
		ScoreSmoothing: 0.2,

		Tolerance:  5,
		BlurGain:   1.5,
		MaxBlur:    20,
		VisualRate: 0.05,
	}
}

// Validate reports the first parameter that would break the pipeline.
func (p Params) Validate() error {
	if p.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive")
	}
	if p.MinSamples <= 0 || p.MinSamples > p.WindowSize {
		return fmt.Errorf("min_samples %d must be in [1, window_size]", p.MinSamples)
	}
	if p.Refractory <= 0 {
		return fmt.Errorf("refractory must be positive")
	}
	if p.MinRate >= p.MaxRate {
		return fmt.Errorf("min_rate %d must be below max_rate %d", p.MinRate, p.MaxRate)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"alpha_eda", p.AlphaEDA},
		{"alpha_pzt", p.AlphaPZT},
		{"alpha_bpm", p.AlphaBPM},
		{"score_smoothing", p.ScoreSmoothing},
		{"visual_rate", p.VisualRate},
	} {
		if f.v <= 0 || f.v > 1 {
			return fmt.Errorf("%s %.3f must be in (0, 1]", f.name, f.v)
		}
	}
	if p.MaxBlur <= 0 {
		return fmt.Errorf("max_blur must be positive")
	}
	return nil
}
