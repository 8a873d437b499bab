package sensor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/biomirror/biomirror/agent/internal/config"
	"github.com/biomirror/biomirror/pkg/types"
)

// ErrShortFrame is returned when a frame lacks a mapped analog column.
var ErrShortFrame = errors.New("sensor: frame has too few channels")

// Frame is one acquisition frame: a sequence number and the raw analog
// channel values in device order.
type Frame struct {
	Seq    int
	Analog []float64
	At     time.Time
}

// Sample maps the frame's analog columns onto a sample.
func (f Frame) Sample(ch config.ChannelMap) (types.Sample, error) {
	n := len(f.Analog)
	if ch.EDA >= n || ch.PZT >= n || ch.PPG >= n {
		return types.Sample{}, fmt.Errorf("%w: seq %d has %d", ErrShortFrame, f.Seq, n)
	}
	return types.Sample{
		EDA:       f.Analog[ch.EDA],
		PZT:       f.Analog[ch.PZT],
		PPG:       f.Analog[ch.PPG],
		Timestamp: f.At,
	}, nil
}

// ParseFrame parses one text line "seq v1 v2 ...". Fields may be separated
// by whitespace, commas or semicolons.
func ParseFrame(line string) (Frame, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == ';'
	})
	if len(fields) < 2 {
		return Frame{}, fmt.Errorf("sensor: frame %q: want seq and at least one channel", line)
	}

	seq, err := strconv.Atoi(fields[0])
	if err != nil {
		return Frame{}, fmt.Errorf("sensor: frame %q: bad sequence: %w", line, err)
	}
	analog := make([]float64, len(fields)-1)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Frame{}, fmt.Errorf("sensor: frame %q: channel %d: %w", line, i, err)
		}
		analog[i] = v
	}
	return Frame{Seq: seq, Analog: analog}, nil
}

// parseError marks a malformed line; the stream stays readable.
type parseError struct {
	line int
	err  error
}

func (e *parseError) Error() string { return fmt.Sprintf("line %d: %v", e.line, e.err) }
func (e *parseError) Unwrap() error { return e.err }

// lineReader yields frames from a text stream, skipping blank lines and
// '#' comments.
type lineReader struct {
	scanner *bufio.Scanner
	line    int
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{scanner: bufio.NewScanner(r)}
}

// next returns io.EOF at the end of the stream.
func (l *lineReader) next() (Frame, error) {
	for l.scanner.Scan() {
		l.line++
		text := strings.TrimSpace(l.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		f, err := ParseFrame(text)
		if err != nil {
			return Frame{}, &parseError{line: l.line, err: err}
		}
		return f, nil
	}
	if err := l.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}
