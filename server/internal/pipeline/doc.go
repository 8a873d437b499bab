// Package pipeline turns raw EDA / PZT / PPG samples into a heart rate, a
// smoothed stability score and a bounded distortion intensity.
//
// rate.go: RateEstimator keeps a 50-sample PPG window and detects beats with
// an amplitude-adaptive threshold (mean + 30% of peak-to-peak) behind a
// 400 ms refractory gate. Instantaneous rates outside (40, 160) bpm are
// discarded; the previous rate is kept.
//
// baseline.go: first-order exponential trackers (α = 0.05 EDA, 0.10 PZT,
// 0.02 BPM) whose residual is the per-channel "variation".
//
// stability.go: the pure Fuse(Input) Output sub-score formula and the
// stateful StabilityScorer that folds it into smoothScore (0.8 / 0.2).
//
// response.go: TargetBlur maps the score to 0..20 above the tolerance of 5;
// VisualBlur approaches the target at 5% per display tick.
//
// pipeline.go: Pipeline owns one instance of each and exposes Calibrate,
// ProcessSample and TickDisplay. It is not safe for concurrent use; the
// session serialises every call on one goroutine.
//
// machine.go: the Idle → Calibrating → Running session state machine.
// Time is always passed in explicitly so tests are deterministic.
package pipeline
