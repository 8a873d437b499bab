package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/biomirror/biomirror/pkg/types"
)

func TestMachine_Lifecycle(t *testing.T) {
	m := NewMachine(3 * time.Second)
	if m.State() != types.StateIdle {
		t.Fatalf("initial state = %q", m.State())
	}
	if m.Advance(baseTime) {
		t.Fatal("Advance from Idle should not transition")
	}

	deadline, err := m.Start(baseTime)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !deadline.Equal(baseTime.Add(3 * time.Second)) {
		t.Errorf("deadline = %v", deadline)
	}
	if m.State() != types.StateCalibrating {
		t.Errorf("state = %q, want calibrating", m.State())
	}

	if m.Advance(baseTime.Add(2999 * time.Millisecond)) {
		t.Error("transitioned before the deadline")
	}
	if !m.Advance(baseTime.Add(3 * time.Second)) {
		t.Error("no transition at the deadline")
	}
	if m.State() != types.StateRunning {
		t.Errorf("state = %q, want running", m.State())
	}
	if m.Advance(baseTime.Add(time.Hour)) {
		t.Error("Running should be terminal")
	}
}

func TestMachine_StartTwice(t *testing.T) {
	m := NewMachine(time.Second)
	if _, err := m.Start(baseTime); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(baseTime); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start err = %v, want ErrAlreadyStarted", err)
	}
	m.Advance(baseTime.Add(time.Second))
	if _, err := m.Start(baseTime); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Start while running err = %v, want ErrAlreadyStarted", err)
	}
}

func TestMachine_DefaultCalibration(t *testing.T) {
	if got := NewMachine(0).Calibration(); got != DefaultCalibration {
		t.Errorf("Calibration = %v, want %v", got, DefaultCalibration)
	}
}

func TestParams_Validate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	tests := map[string]func(*Params){
		"zero window":        func(p *Params) { p.WindowSize = 0 },
		"min above window":   func(p *Params) { p.MinSamples = 51 },
		"no refractory":      func(p *Params) { p.Refractory = 0 },
		"inverted rate band": func(p *Params) { p.MinRate = 200 },
		"alpha out of range": func(p *Params) { p.AlphaEDA = 1.5 },
		"no max blur":        func(p *Params) { p.MaxBlur = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			p := DefaultParams()
			mutate(&p)
			if err := p.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestParams_ValidateReportsFirstInvalidRate(t *testing.T) {
	p := DefaultParams()
	p.AlphaPZT = 0
	p.ScoreSmoothing = 2
	p.VisualRate = -1
	for i := 0; i < 20; i++ {
		err := p.Validate()
		if err == nil || !strings.HasPrefix(err.Error(), "alpha_pzt ") {
			t.Fatalf("run %d: got %v, want the alpha_pzt error first", i, err)
		}
	}
}
