package pipeline

import (
	"math"
	"testing"
)

func TestTargetBlur(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		score float64
		want  float64
	}{
		{0, 0},
		{4.999, 0},
		{5, 0},
		{6, 1.5},
		{10, 7.5},
		{18, 19.5},
		{5 + 20/1.5, 20},
		{18.34, 20},
		{100, 20},
	}
	for _, tc := range tests {
		got := TargetBlur(tc.score, p)
		if !almostEqual(got, tc.want, 1e-9) {
			t.Errorf("TargetBlur(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestVisualBlur_ConvergesWithoutOvershoot(t *testing.T) {
	v := NewVisualBlur(DefaultParams().VisualRate)
	v.SetTarget(12)
	prev := 0.0
	for i := 0; i < 500; i++ {
		cur := v.Tick()
		if cur < prev || cur > 12 {
			t.Fatalf("tick %d: %v after %v, want monotonic within [0, 12]", i, cur, prev)
		}
		prev = cur
	}
	if math.Abs(prev-12) > 1e-6 {
		t.Errorf("after 500 ticks = %v, want ~12", prev)
	}

	v.SetTarget(0)
	for i := 0; i < 500; i++ {
		cur := v.Tick()
		if cur > prev || cur < 0 {
			t.Fatalf("falling tick %d: %v after %v", i, cur, prev)
		}
		prev = cur
	}
}

func TestVisualBlur_FirstTick(t *testing.T) {
	v := NewVisualBlur(0.05)
	v.SetTarget(20)
	if got := v.Tick(); !almostEqual(got, 1, 1e-9) {
		t.Errorf("first tick = %v, want 1", got)
	}
	v.Reset()
	if v.Current() != 0 || v.Target() != 0 {
		t.Errorf("after Reset current=%v target=%v", v.Current(), v.Target())
	}
}
