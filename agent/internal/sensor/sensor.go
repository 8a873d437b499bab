package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/biomirror/biomirror/agent/internal/config"
	"github.com/biomirror/biomirror/pkg/types"
)

// Source is the common interface of every sample source.
type Source interface {
	// Next blocks until the next sample is available. It returns io.EOF when
	// the source is exhausted and ctx.Err() when cancelled.
	Next(ctx context.Context) (types.Sample, error)
}

// FrameReader produces raw acquisition frames.
type FrameReader interface {
	ReadFrame(ctx context.Context) (Frame, error)
	io.Closer
}

// Stream decimates a FrameReader and maps the kept frames onto samples.
type Stream struct {
	reader   FrameReader
	dec      *Decimator
	channels config.ChannelMap

	frames  atomic.Uint64
	kept    atomic.Uint64
	skipped atomic.Uint64 // malformed or short frames
}

// Open returns a Stream for the configured sensor type. ctx bounds blocking
// reads of the serial device.
func Open(ctx context.Context, cfg config.SensorConfig) (*Stream, error) {
	var (
		r   FrameReader
		err error
	)
	switch cfg.Type {
	case config.SensorSerial:
		r, err = openSerial(ctx, cfg)
	case config.SensorReplay:
		r, err = openReplay(cfg.Path, cfg.Interval)
	case config.SensorSynthetic:
		r = newSynthetic(cfg, time.Now())
	default:
		err = fmt.Errorf("sensor: unsupported type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return NewStream(r, NewDecimator(cfg.Decimation), cfg.Channels), nil
}

// NewStream wraps r.
func NewStream(r FrameReader, dec *Decimator, channels config.ChannelMap) *Stream {
	return &Stream{reader: r, dec: dec, channels: channels}
}

// Next returns the next kept frame as a sample. Malformed frames are logged
// and skipped.
func (s *Stream) Next(ctx context.Context) (types.Sample, error) {
	for {
		f, err := s.reader.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return types.Sample{}, err
			}
			var perr *parseError
			if errors.As(err, &perr) {
				s.skipped.Add(1)
				slog.Debug("sensor: skipping frame", "err", err)
				continue
			}
			return types.Sample{}, err
		}
		s.frames.Add(1)
		if !s.dec.Keep(f.Seq) {
			continue
		}
		sample, err := f.Sample(s.channels)
		if err != nil {
			s.skipped.Add(1)
			slog.Debug("sensor: skipping frame", "err", err)
			continue
		}
		s.kept.Add(1)
		return sample, nil
	}
}

// SetDecimation changes the decimation factor for subsequent frames.
func (s *Stream) SetDecimation(n int) { s.dec.SetFactor(n) }

// Stats returns frames read, frames kept and frames skipped.
func (s *Stream) Stats() (frames, kept, skipped uint64) {
	return s.frames.Load(), s.kept.Load(), s.skipped.Load()
}

// Close releases the underlying device or file.
func (s *Stream) Close() error { return s.reader.Close() }
