package pipeline

// TargetBlur maps a stability score to a distortion intensity:
// 0 below Tolerance, then (score - Tolerance) * BlurGain, capped at MaxBlur.
func TargetBlur(score float64, p Params) float64 {
	if score < p.Tolerance {
		return 0
	}
	t := (score - p.Tolerance) * p.BlurGain
	if t > p.MaxBlur {
		t = p.MaxBlur
	}
	return t
}

// VisualBlur is the displayed distortion. It moves toward the target by a
// fixed fraction of the gap on every display tick, so it never overshoots.
type VisualBlur struct {
	rate    float64
	target  float64
	current float64
}

// NewVisualBlur returns a blur at rest.
func NewVisualBlur(rate float64) VisualBlur { return VisualBlur{rate: rate} }

// SetTarget records the latest target from the sample clock.
func (v *VisualBlur) SetTarget(t float64) { v.target = t }

// Tick advances one display frame and returns the displayed value.
func (v *VisualBlur) Tick() float64 {
	v.current += (v.target - v.current) * v.rate
	return v.current
}

func (v *VisualBlur) Target() float64  { return v.target }
func (v *VisualBlur) Current() float64 { return v.current }

// Reset puts both values back to 0.
func (v *VisualBlur) Reset() { v.target, v.current = 0, 0 }
