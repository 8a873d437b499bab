package pipeline

import (
	"errors"
	"time"

	"github.com/biomirror/biomirror/pkg/types"
)

// DefaultCalibration is how long the Calibrating state lasts.
const DefaultCalibration = 3 * time.Second

// ErrAlreadyStarted is returned by Start outside the Idle state.
var ErrAlreadyStarted = errors.New("session already started")

// Machine is the Idle → Calibrating → Running state machine.
// Running is terminal; there is no way back to Calibrating.
type Machine struct {
	calibration time.Duration
	state       types.SessionState
	startedAt   time.Time
	deadline    time.Time
}

// NewMachine returns an Idle machine.
func NewMachine(calibration time.Duration) *Machine {
	if calibration <= 0 {
		calibration = DefaultCalibration
	}
	return &Machine{calibration: calibration, state: types.StateIdle}
}

// Start enters Calibrating and returns the instant calibration ends.
func (m *Machine) Start(now time.Time) (time.Time, error) {
	if m.state != types.StateIdle {
		return time.Time{}, ErrAlreadyStarted
	}
	m.state = types.StateCalibrating
	m.startedAt = now
	m.deadline = now.Add(m.calibration)
	return m.deadline, nil
}

// Advance moves Calibrating to Running once now reaches the deadline.
// It reports whether a transition happened.
func (m *Machine) Advance(now time.Time) bool {
	if m.state != types.StateCalibrating || now.Before(m.deadline) {
		return false
	}
	m.state = types.StateRunning
	return true
}

func (m *Machine) State() types.SessionState { return m.state }
func (m *Machine) StartedAt() time.Time      { return m.startedAt }
func (m *Machine) Deadline() time.Time       { return m.deadline }
func (m *Machine) Calibration() time.Duration {
	return m.calibration
}
