package pipeline

import "testing"

func TestFuse(t *testing.T) {
	p := DefaultParams()
	tests := []struct {
		name string
		in   Input
		want float64
	}{
		{"all quiet", Input{}, 0},
		{"eda only", Input{VariationEDA: -0.5}, 1},
		{"bpm only", Input{VariationBPM: 4}, 6},
		{"pzt inside dead zone", Input{DeltaPZT: 10}, 0},
		{"pzt past dead zone", Input{DeltaPZT: 14}, 2},
		{"combined", Input{VariationEDA: 1, VariationBPM: -2, DeltaPZT: 30}, 2 + 3 + 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Fuse(tc.in, p)
			if !almostEqual(got.Global, tc.want, 1e-9) {
				t.Errorf("Global = %v, want %v", got.Global, tc.want)
			}
			if !almostEqual(got.EDA+got.BPM+got.PZT, got.Global, 1e-9) {
				t.Errorf("components %+v do not sum to Global", got)
			}
		})
	}
}

func TestStabilityScorer_Smoothing(t *testing.T) {
	s := NewStabilityScorer(DefaultParams())
	// 20 pzt from 0 is a slope of 20: (20-10)*0.5 = 5 raw, 1 smoothed.
	if got := s.Update(0, 0, 20); !almostEqual(got, 1, 1e-9) {
		t.Fatalf("first score = %v, want 1", got)
	}
	// No slope on the second call; the score decays by 0.8.
	if got := s.Update(0, 0, 20); !almostEqual(got, 0.8, 1e-9) {
		t.Errorf("second score = %v, want 0.8", got)
	}
	if s.Last().Global != 0 {
		t.Errorf("Last().Global = %v, want 0", s.Last().Global)
	}
}

func TestStabilityScorer_ObservePZT(t *testing.T) {
	s := NewStabilityScorer(DefaultParams())
	s.ObservePZT(500)
	if got := s.Update(0, 0, 500); got != 0 {
		t.Errorf("score after observing the same pzt = %v, want 0", got)
	}
	s.Reset()
	if got := s.Update(0, 0, 500); got == 0 {
		t.Error("Reset should clear prevPzt back to 0")
	}
}
