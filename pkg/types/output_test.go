package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestHeartRate_MarshalUnavailable(t *testing.T) {
	b, err := json.Marshal(HeartRate{})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `"unavailable"` {
		t.Errorf("got %s, want \"unavailable\"", b)
	}
}

func TestHeartRate_MarshalNumber(t *testing.T) {
	b, err := json.Marshal(BPM(72))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != "72" {
		t.Errorf("got %s, want 72", b)
	}
}

func TestHeartRate_UnmarshalRejectsOtherStrings(t *testing.T) {
	var h HeartRate
	if err := json.Unmarshal([]byte(`"n/a"`), &h); err == nil {
		t.Error("expected error for unknown sentinel, got nil")
	}
	if err := json.Unmarshal([]byte(`"unavailable"`), &h); err != nil || h.Available {
		t.Errorf("unavailable: got %+v err=%v", h, err)
	}
}

func TestHeartRate_String(t *testing.T) {
	if got := (HeartRate{}).String(); got != "-- BPM" {
		t.Errorf("unavailable String = %q", got)
	}
	if got := BPM(64).String(); got != "64 BPM" {
		t.Errorf("String = %q", got)
	}
}

func TestSample_TimestampOptional(t *testing.T) {
	var s Sample
	if err := json.Unmarshal([]byte(`{"eda":1.5,"pzt":-3,"ppg":512}`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !s.Timestamp.IsZero() {
		t.Errorf("Timestamp: got %v, want zero", s.Timestamp)
	}
	if s.EDA != 1.5 || s.PZT != -3 || s.PPG != 512 {
		t.Errorf("channels: got %+v", s)
	}

	ts := time.UnixMilli(1_700_000_000_123).UTC()
	b, _ := json.Marshal(Sample{PPG: 1, Timestamp: ts})
	var back Sample
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !back.Timestamp.Equal(ts) {
		t.Errorf("Timestamp: got %v, want %v", back.Timestamp, ts)
	}
}
