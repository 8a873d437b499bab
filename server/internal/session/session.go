package session

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/server/internal/pipeline"
)

// ErrAlreadyStarted is returned by Start when the session is not Idle.
var ErrAlreadyStarted = pipeline.ErrAlreadyStarted

const (
	// DefaultDisplayRate is the display ticker frequency in Hz.
	DefaultDisplayRate = 60

	// visualEpsilon suppresses visual events that would not change a frame.
	visualEpsilon = 1e-3
)

// Event names broadcast by the session.
const (
	EventOutput = "output"
	EventVisual = "visual"
	EventState  = "state"
)

// Broadcaster fans session events out to observers.
type Broadcaster interface {
	Broadcast(event string, data any) error
}

// Recorder consumes every output tuple on the session goroutine. Record
// must not block.
type Recorder interface {
	Record(out types.Output)
}

// Options configures a Session.
type Options struct {
	Params      pipeline.Params
	Calibration time.Duration
	DisplayRate float64 // Hz

	Broadcaster Broadcaster
	Recorders   []Recorder

	// OnState is called on every lifecycle transition.
	OnState func(types.SessionState)

	// Now stamps samples that arrive without a producer timestamp.
	Now func() time.Time
}

// Snapshot is a read-only copy of the session, safe to hand to the API.
type Snapshot struct {
	ID                string             `json:"id,omitempty"`
	State             types.SessionState `json:"state"`
	StartedAt         time.Time          `json:"started_at,omitempty"`
	CalibrationEndsAt time.Time          `json:"calibration_ends_at,omitempty"`
	CalibrationCount  int                `json:"calibration_samples"`
	Latest            *types.Output      `json:"latest,omitempty"`
	VisualBlur        float64            `json:"visual_blur"`
	Pipeline          pipeline.State     `json:"pipeline"`
}

// Visual is the payload of a "visual" event.
type Visual struct {
	VisualBlur float64 `json:"visual_blur"`
	TargetBlur float64 `json:"target_blur"`
}

type startReq struct {
	reply chan startResp
}

type startResp struct {
	snap Snapshot
	err  error
}

// Session owns a pipeline and its state machine.
type Session struct {
	opts    Options
	samples <-chan types.Sample
	starts  chan startReq

	// Touched only by the Run goroutine.
	pipe       *pipeline.Pipeline
	machine    *pipeline.Machine
	id         string
	calibrated int
	latest     *types.Output
	lastVisual float64

	mu   sync.RWMutex
	snap Snapshot
}

// New creates an Idle session reading from samples.
func New(samples <-chan types.Sample, opts Options) *Session {
	if opts.DisplayRate <= 0 {
		opts.DisplayRate = DefaultDisplayRate
	}
	if opts.Calibration <= 0 {
		opts.Calibration = pipeline.DefaultCalibration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		opts:    opts,
		samples: samples,
		starts:  make(chan startReq),
		pipe:    pipeline.New(opts.Params),
		machine: pipeline.NewMachine(opts.Calibration),
	}
	s.publish()
	return s
}

// Start moves an Idle session into Calibrating. It returns ErrAlreadyStarted
// from any other state, or ctx.Err() if the loop is not running.
func (s *Session) Start(ctx context.Context) (Snapshot, error) {
	req := startReq{reply: make(chan startResp, 1)}
	select {
	case s.starts <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp.snap, resp.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Snapshot returns the state as of the last processed event.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Run processes events until ctx is cancelled or the sample channel closes.
func (s *Session) Run(ctx context.Context) {
	display := time.NewTicker(time.Duration(float64(time.Second) / s.opts.DisplayRate))
	defer display.Stop()

	// calibrated is nil until Start; a nil channel never fires.
	var calibrated <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-s.starts:
			timer, err := s.start()
			if err == nil {
				calibrated = timer.C
			}
			req.reply <- startResp{snap: s.Snapshot(), err: err}

		case <-calibrated:
			calibrated = nil
			// The timer is the clock for this transition.
			if s.machine.Advance(s.machine.Deadline()) {
				slog.Info("session: calibration complete",
					"session", s.id,
					"samples", s.calibrated,
					"ref_eda", s.pipe.State().RefEDA,
					"ref_pzt", s.pipe.State().RefPZT,
				)
				s.transitioned()
			}

		case sample, ok := <-s.samples:
			if !ok {
				slog.Info("session: sample stream closed", "session", s.id)
				return
			}
			s.handleSample(sample)

		case <-display.C:
			s.tick()
		}
	}
}

// --- internal ---------------------------------------------------------------

func (s *Session) start() (*time.Timer, error) {
	deadline, err := s.machine.Start(s.opts.Now())
	if err != nil {
		return nil, err
	}
	s.id = uuid.NewString()
	// Each calibration phase starts from neutral trackers.
	s.pipe.Reset()
	s.calibrated = 0
	s.latest = nil
	s.lastVisual = 0
	slog.Info("session: calibrating", "session", s.id, "until", deadline)
	s.transitioned()
	return time.NewTimer(s.opts.Calibration), nil
}

func (s *Session) handleSample(sample types.Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.opts.Now()
	}

	switch s.machine.State() {
	case types.StateCalibrating:
		s.pipe.Calibrate(sample)
		s.calibrated++
		s.publish()

	case types.StateRunning:
		out := s.pipe.ProcessSample(sample)
		s.latest = &out
		s.publish()
		slog.Debug("session: output", "session", s.id, "heart_rate", out.HeartRate.String(), "score", out.StabilityScore)

		s.broadcast(EventOutput, out)
		for _, r := range s.opts.Recorders {
			r.Record(out)
		}
	}
}

func (s *Session) tick() {
	// The visual effect only runs while the session is live.
	if s.machine.State() != types.StateRunning {
		return
	}
	v := s.pipe.TickDisplay()
	if math.Abs(v-s.lastVisual) < visualEpsilon {
		return
	}
	s.lastVisual = v
	s.publish()
	s.broadcast(EventVisual, Visual{VisualBlur: v, TargetBlur: s.pipe.State().TargetBlur})
}

func (s *Session) transitioned() {
	s.publish()
	snap := s.Snapshot()
	s.broadcast(EventState, snap)
	if s.opts.OnState != nil {
		s.opts.OnState(snap.State)
	}
}

func (s *Session) broadcast(event string, data any) {
	if s.opts.Broadcaster == nil {
		return
	}
	if err := s.opts.Broadcaster.Broadcast(event, data); err != nil {
		slog.Warn("session: broadcast failed", "event", event, "err", err)
	}
}

// publish copies loop-owned state into the snapshot read by the API.
func (s *Session) publish() {
	snap := Snapshot{
		ID:               s.id,
		State:            s.machine.State(),
		StartedAt:        s.machine.StartedAt(),
		CalibrationCount: s.calibrated,
		VisualBlur:       s.pipe.VisualBlur(),
		Pipeline:         s.pipe.State(),
	}
	if !snap.StartedAt.IsZero() {
		snap.CalibrationEndsAt = s.machine.Deadline()
	}
	if s.latest != nil {
		out := *s.latest
		snap.Latest = &out
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}
