package sensor

import (
	"context"
	"fmt"
	"os"
	"time"
)

// pacer releases frame n at start + n*interval. A caller that falls behind
// gets frames back to back until it catches up.
type pacer struct {
	start    time.Time
	interval time.Duration
	n        int64
}

func newPacer(start time.Time, interval time.Duration) *pacer {
	return &pacer{start: start, interval: interval}
}

// wait blocks until the next frame is due and returns its due time.
func (p *pacer) wait(ctx context.Context) (time.Time, error) {
	due := p.start.Add(time.Duration(p.n) * p.interval)
	p.n++
	if d := time.Until(due); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-t.C:
		}
	}
	return due, nil
}

// replayReader plays back a recorded text capture at the configured frame
// period. Frames are stamped with their scheduled time.
type replayReader struct {
	file  *os.File
	lines *lineReader
	pace  *pacer
}

func openReplay(path string, interval time.Duration) (*replayReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sensor: replay: %w", err)
	}
	return &replayReader{
		file:  f,
		lines: newLineReader(f),
		pace:  newPacer(time.Now(), interval),
	}, nil
}

func (r *replayReader) ReadFrame(ctx context.Context) (Frame, error) {
	f, err := r.lines.next()
	if err != nil {
		return Frame{}, err
	}
	at, err := r.pace.wait(ctx)
	if err != nil {
		return Frame{}, err
	}
	f.At = at
	return f, nil
}

func (r *replayReader) Close() error { return r.file.Close() }
