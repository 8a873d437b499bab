package types

import (
	"encoding/json"
	"time"
)

// Sample is one reading of the three sensor channels.
//
// Timestamp is the arrival instant used by the rate estimator. Producers may
// set it (serialised as "ts", unix milliseconds); when absent the session
// stamps the sample on receipt.
type Sample struct {
	EDA       float64
	PZT       float64
	PPG       float64
	Timestamp time.Time
}

// sampleJSON is the wire shape of a sensor_update event payload.
type sampleJSON struct {
	EDA float64 `json:"eda"`
	PZT float64 `json:"pzt"`
	PPG float64 `json:"ppg"`
	TS  int64   `json:"ts,omitempty"`
}

// MarshalJSON encodes the sample as {"eda","pzt","ppg"} plus "ts" when set.
func (s Sample) MarshalJSON() ([]byte, error) {
	out := sampleJSON{EDA: s.EDA, PZT: s.PZT, PPG: s.PPG}
	if !s.Timestamp.IsZero() {
		out.TS = s.Timestamp.UnixMilli()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a sensor_update payload. Missing channels decode as 0.
func (s *Sample) UnmarshalJSON(b []byte) error {
	var in sampleJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	s.EDA, s.PZT, s.PPG = in.EDA, in.PZT, in.PPG
	s.Timestamp = time.Time{}
	if in.TS > 0 {
		s.Timestamp = time.UnixMilli(in.TS).UTC()
	}
	return nil
}
