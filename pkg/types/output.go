package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Unavailable is the JSON sentinel reported when no heart rate can be decoded.
const Unavailable = "unavailable"

// HeartRate is a beats-per-minute value that may be unavailable.
// It marshals as a JSON number, or as the string "unavailable".
type HeartRate struct {
	BPM       int
	Available bool
}

// BPM returns an available heart rate.
func BPM(v int) HeartRate { return HeartRate{BPM: v, Available: true} }

// String renders the rate the way the dashboard shows it.
func (h HeartRate) String() string {
	if !h.Available {
		return "-- BPM"
	}
	return fmt.Sprintf("%d BPM", h.BPM)
}

func (h HeartRate) MarshalJSON() ([]byte, error) {
	if !h.Available {
		return json.Marshal(Unavailable)
	}
	return json.Marshal(h.BPM)
}

func (h *HeartRate) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte(`"`)) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s != Unavailable {
			return fmt.Errorf("heart rate: unexpected string %q", s)
		}
		*h = HeartRate{}
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*h = BPM(v)
	return nil
}

// Output is the tuple the pipeline emits for every sample processed while
// the session is running.
type Output struct {
	HeartRate           HeartRate `json:"heart_rate"`
	EDAVariation        float64   `json:"eda_variation"`
	RespVariation       float64   `json:"resp_variation"`
	StabilityScore      float64   `json:"stability_score"`
	DistortionIntensity float64   `json:"distortion_intensity"` // 0..20

	// PPG is the raw pulse value, carried for the waveform chart.
	PPG       float64   `json:"ppg"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is the presentation session lifecycle state.
type SessionState string

const (
	StateIdle        SessionState = "idle"
	StateCalibrating SessionState = "calibrating"
	StateRunning     SessionState = "running"
)
