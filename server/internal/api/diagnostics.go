package api

import (
	"fmt"
	"sort"

	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/server/internal/pipeline"
	"github.com/biomirror/biomirror/server/internal/session"
	"github.com/biomirror/biomirror/server/internal/store"
)

// DiagnosticHint is one human-readable insight about the running session.
// The UI shows these as chips; Detail explains the problem in plain English.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2}

// computeDiagnostics derives hints from a session snapshot and the producer
// registry. Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(snap session.Snapshot, producers []store.Producer, observers int, tolerance float64) []DiagnosticHint {
	hints := []DiagnosticHint{}

	switch snap.State {
	case types.StateIdle:
		hints = append(hints, DiagnosticHint{
			Key:   "idle",
			Level: "info",
			Title: "Session not started",
			Detail: "Samples are relayed to observers but nothing is scored yet. " +
				"POST /api/v1/session/start to begin calibration.",
		})

	case types.StateCalibrating:
		v := float64(snap.CalibrationCount)
		level, detail := "info", fmt.Sprintf(
			"The resting baselines are being seeded from incoming samples (%d so far). "+
				"Sit still until calibration ends at %s.",
			snap.CalibrationCount, snap.CalibrationEndsAt.Format("15:04:05"))
		if snap.CalibrationCount == 0 {
			level = "warning"
			detail = "No samples have arrived since calibration started. " +
				"Baselines stay at zero unless a producer delivers data before the calibration window closes."
		}
		hints = append(hints, DiagnosticHint{Key: "calibrating", Level: level, Title: "Calibrating", Detail: detail, Value: &v})

	case types.StateRunning:
		hints = append(hints, runningHints(snap, tolerance)...)
	}

	if len(producers) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "no_producers",
			Level: "warning",
			Title: "No producers",
			Detail: "No agent has delivered samples over gRPC or MQTT recently. " +
				"Producers using the /ws/publish websocket are not listed here.",
		})
	}
	for _, p := range producers {
		total := p.Samples + p.Dropped
		if p.Dropped == 0 || total == 0 {
			continue
		}
		pct := float64(p.Dropped) / float64(total) * 100
		level := "info"
		if pct >= 1 {
			level = "warning"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "producer_drops:" + p.ID,
			Level: level,
			Title: fmt.Sprintf("%s dropping %.1f%%", p.ID, pct),
			Detail: fmt.Sprintf(
				"Producer %q sent %d samples that were not finite numbers. "+
					"They were discarded before scoring. Check the sensor wiring and channel mapping.",
				p.ID, p.Dropped),
			Value: &pct,
		})
	}

	if observers == 0 {
		hints = append(hints, DiagnosticHint{
			Key:    "no_observers",
			Level:  "info",
			Title:  "No observers",
			Detail: "No browser is connected to /ws/session, so the visual response is not shown anywhere.",
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}

func runningHints(snap session.Snapshot, tolerance float64) []DiagnosticHint {
	if snap.Latest == nil {
		return []DiagnosticHint{{
			Key:    "no_samples",
			Level:  "warning",
			Title:  "Waiting for samples",
			Detail: "The session is running but no sample has been scored yet.",
		}}
	}

	var hints []DiagnosticHint
	out := snap.Latest
	if !out.HeartRate.Available {
		w := snap.Pipeline.Window
		amp := w.Amplitude
		hints = append(hints, DiagnosticHint{
			Key:   "heart_rate_unavailable",
			Level: "warning",
			Title: "Heart rate unavailable",
			Detail: fmt.Sprintf(
				"The PPG window holds %d samples with a peak-to-peak amplitude of %.1f, "+
					"too few or too flat to find beats. Check that the pulse sensor has skin contact.",
				w.Count, amp),
			Value: &amp,
		})
	}

	if tolerance > 0 && out.StabilityScore > tolerance {
		v := out.StabilityScore
		level := "warning"
		if v > 2*tolerance {
			level = "critical"
		}
		hints = append(hints, DiagnosticHint{
			Key:   "unstable",
			Level: level,
			Title: fmt.Sprintf("Stability %.1f", v),
			Detail: fmt.Sprintf(
				"The stability score is above the tolerance of %.1f, so the visual distortion is %.1f. "+
					"The largest contribution comes from %s.",
				tolerance, out.DistortionIntensity, dominantChannel(snap.Pipeline.Breakdown)),
			Value: &v,
		})
	}
	return hints
}

// dominantChannel names the signal with the largest share of the last score.
func dominantChannel(b pipeline.Output) string {
	name, top := "skin conductance", b.EDA
	if b.BPM > top {
		name, top = "heart rate", b.BPM
	}
	if b.PZT > top {
		name = "breathing"
	}
	return name
}
