package sensor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/biomirror/biomirror/agent/internal/config"
)

// readTimeout bounds a single port read so cancellation is noticed.
const readTimeout = 200 * time.Millisecond

// PortMode converts the sensor's serial settings into the mode required by
// go.bug.st/serial when opening a port.
func PortMode(cfg config.SensorConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = config.DefaultBaudRate
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("sensor: invalid data bits %d: must be between 5 and 8", mode.DataBits)
	}

	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("sensor: invalid stop bits %d: supported values are 1 or 2", cfg.StopBits)
	}

	switch strings.ToUpper(strings.TrimSpace(cfg.Parity)) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("sensor: unsupported parity %q: expected none, even or odd", cfg.Parity)
	}
	return mode, nil
}

// serialReader reads text frames from a serial port. Frames are stamped
// with their arrival time.
type serialReader struct {
	port  serial.Port
	lines *lineReader
	now   func() time.Time
}

func openSerial(ctx context.Context, cfg config.SensorConfig) (*serialReader, error) {
	mode, err := PortMode(cfg)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("sensor: open %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("sensor: %s: set read timeout: %w", cfg.Device, err)
	}
	return &serialReader{
		port:  port,
		lines: newLineReader(&portReader{ctx: ctx, port: port}),
		now:   time.Now,
	}, nil
}

func (r *serialReader) ReadFrame(context.Context) (Frame, error) {
	f, err := r.lines.next()
	if err != nil {
		return Frame{}, err
	}
	f.At = r.now()
	return f, nil
}

func (r *serialReader) Close() error { return r.port.Close() }

// portReader turns read timeouts into retries until ctx is done, so the
// line scanner never sees an empty read.
type portReader struct {
	ctx  context.Context
	port serial.Port
}

func (p *portReader) Read(b []byte) (int, error) {
	for {
		n, err := p.port.Read(b)
		if n > 0 || err != nil {
			return n, err
		}
		if err := p.ctx.Err(); err != nil {
			return 0, err
		}
	}
}
