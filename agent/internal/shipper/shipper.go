package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/biomirror/biomirror/agent/internal/config"
	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/pkg/wire"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 5 * time.Second
)

// Shipper buffers samples and publishes them in batches to biomirror-server
// via gRPC. Ship() is non-blocking; when the buffer is full the oldest sample
// is evicted. Run() must be called in a goroutine to drain the buffer and
// handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan types.Sample
	dialFn dialFunc // injectable for tests

	shipped atomic.Uint64
	dropped atomic.Uint64
}

// dialFunc is the function signature used to open a gRPC connection.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if cfg.ShipInterval <= 0 {
		cfg.ShipInterval = config.DefaultShipInterval
	}
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan types.Sample, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship enqueues a sample. If the buffer is full the oldest entry is evicted
// to make room, so order is preserved.
func (s *Shipper) Ship(sample types.Sample) {
	select {
	case s.buf <- sample:
	default:
		select {
		case <-s.buf:
			s.dropped.Add(1)
			slog.Debug("shipper: buffer full, evicted oldest sample", "buffer_cap", cap(s.buf))
		default:
		}
		select {
		case s.buf <- sample:
		default:
			s.dropped.Add(1)
		}
	}
}

// Stats returns the number of samples the server accepted and the number
// dropped on the agent side.
func (s *Shipper) Stats() (shipped, dropped uint64) {
	return s.shipped.Load(), s.dropped.Load()
}

// Run drains the buffer, publishing batches to the server.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint, "producer", s.cfg.ProducerID)
		bo.reset()

		err = s.drain(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain publishes batches until a send fails with a transient error or ctx
// is cancelled. A failed batch is dropped, never re-queued behind newer
// samples.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn) error {
	client := wire.NewSampleRelayClient(conn)

	for {
		batch, ok := collect(ctx, s.buf, s.cfg.BatchSize, s.cfg.ShipInterval)
		if !ok {
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		if s.cfg.ServerAuth.Mode == "apikey" && s.cfg.ServerAuth.KeyEnv != "" {
			sendCtx = metadata.AppendToOutgoingContext(
				sendCtx,
				s.cfg.ServerAuth.Header, s.cfg.ServerAuth.Key(),
			)
		}

		resp, err := client.Publish(sendCtx, toRequest(s.cfg.ProducerID, batch))
		cancel()

		if err != nil {
			s.dropped.Add(uint64(len(batch)))
			// Permanent errors (unauthenticated, invalid arg) → log and discard.
			// Transient errors (unavailable, deadline exceeded) → reconnect.
			if isPermanentError(err) {
				slog.Error("shipper: permanent send error, discarding batch",
					"samples", len(batch), "err", err)
				continue
			}
			return fmt.Errorf("publish: %w", err)
		}

		s.shipped.Add(uint64(resp.Accepted))
		if !resp.OK {
			slog.Warn("shipper: server rejected batch",
				"samples", len(batch), "message", resp.Message)
		} else {
			slog.Debug("shipper: batch delivered", "samples", len(batch), "accepted", resp.Accepted)
		}
	}
}

// isPermanentError returns true for gRPC errors that indicate the batch
// itself is invalid and should not be retried.
func isPermanentError(err error) bool {
	code := status.Code(err)
	switch code {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to endpoint with auth configured from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // deprecated in 1.63 but DialContext is used for compat
}

// dialOptions builds grpc.DialOption slice based on the server auth config.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	switch cfg.ServerAuth.Mode {
	case "mtls":
		creds, err := buildMTLSCreds(cfg.ServerAuth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	default: // "apikey" (key sent per call), "none" or empty
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
}

// buildMTLSCreds loads client certificate and optional CA from the auth config.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
