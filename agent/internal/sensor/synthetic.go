package sensor

import (
	"context"
	"math"
	"time"

	"github.com/biomirror/biomirror/agent/internal/config"
)

// respBaseline is the resting level of the synthetic respiration belt.
const respBaseline = 512

// syntheticReader generates a resting subject: a sinusoidal pulse wave at
// the configured heart rate, constant skin conductance and slow breathing.
type syntheticReader struct {
	cfg      config.SyntheticConfig
	channels config.ChannelMap
	width    int
	pace     *pacer
	seq      int
}

func newSynthetic(cfg config.SensorConfig, start time.Time) *syntheticReader {
	width := max(cfg.Channels.EDA, cfg.Channels.PZT, cfg.Channels.PPG) + 1
	return &syntheticReader{
		cfg:      cfg.Synthetic,
		channels: cfg.Channels,
		width:    width,
		pace:     newPacer(start, cfg.Interval),
	}
}

func (r *syntheticReader) ReadFrame(ctx context.Context) (Frame, error) {
	at, err := r.pace.wait(ctx)
	if err != nil {
		return Frame{}, err
	}
	f := r.frame(r.seq, at.Sub(r.pace.start))
	f.At = at
	r.seq++
	return f, nil
}

// frame computes the signals at offset t from the start.
func (r *syntheticReader) frame(seq int, t time.Duration) Frame {
	s := t.Seconds()
	analog := make([]float64, r.width)
	analog[r.channels.EDA] = r.cfg.EDA
	analog[r.channels.PZT] = respBaseline + r.cfg.RespAmplitude*math.Sin(2*math.Pi*r.cfg.RespRate/60*s)
	analog[r.channels.PPG] = r.cfg.PPGOffset + r.cfg.PPGAmplitude*math.Sin(2*math.Pi*r.cfg.HeartRate/60*s)
	return Frame{Seq: seq, Analog: analog}
}

func (r *syntheticReader) Close() error { return nil }
