package receiver

import (
	"context"
	"log/slog"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/pkg/wire"
	"github.com/biomirror/biomirror/server/internal/store"
)

// Transport names recorded per producer.
const (
	TransportGRPC = "grpc"
	TransportMQTT = "mqtt"
)

// Drop reasons passed to Options.OnDrop.
const (
	DropNonFinite = "non_finite"
	DropRelay     = "relay"
)

// Publisher relays one sample downstream.
type Publisher interface {
	PublishSample(s types.Sample) error
}

// Options wires optional bookkeeping into a Receiver.
type Options struct {
	Producers *store.Producers
	OnDrop    func(reason string, n int)
}

// Receiver validates incoming batches and relays their samples.
type Receiver struct {
	relay Publisher
	opts  Options
}

// New creates a Receiver that relays accepted samples to p.
func New(p Publisher, opts Options) *Receiver {
	return &Receiver{relay: p, opts: opts}
}

// Publish is the unary RPC handler called by biomirror-agent instances.
func (r *Receiver) Publish(ctx context.Context, req *wire.PublishRequest) (*wire.PublishResponse, error) {
	if req.ProducerID == "" {
		return nil, status.Error(codes.InvalidArgument, "producer_id is required")
	}
	if len(req.Samples) == 0 {
		return nil, status.Error(codes.InvalidArgument, "samples must not be empty")
	}

	accepted, dropped := r.Ingest(req.ProducerID, TransportGRPC, req.Samples)

	slog.Debug("receiver: batch relayed",
		"producer", req.ProducerID,
		"accepted", accepted,
		"dropped", dropped,
	)

	resp := &wire.PublishResponse{OK: true, Accepted: accepted}
	if dropped > 0 {
		resp.Message = "dropped non-finite samples"
	}
	return resp, nil
}

// Ingest relays samples from one producer in order and returns how many were
// accepted and dropped.
func (r *Receiver) Ingest(producer, transport string, samples []types.Sample) (accepted, dropped int) {
	var nonFinite, failed int
	for _, s := range samples {
		if !finite(s) {
			nonFinite++
			continue
		}
		if err := r.relay.PublishSample(s); err != nil {
			slog.Warn("receiver: relay failed", "producer", producer, "err", err)
			failed++
			continue
		}
		accepted++
	}

	if nonFinite > 0 {
		slog.Warn("receiver: dropped non-finite samples", "producer", producer, "count", nonFinite)
		r.dropped(DropNonFinite, nonFinite)
	}
	r.dropped(DropRelay, failed)

	dropped = nonFinite + failed
	if r.opts.Producers != nil {
		r.opts.Producers.Seen(producer, transport, accepted, dropped)
	}
	return accepted, dropped
}

func (r *Receiver) dropped(reason string, n int) {
	if n > 0 && r.opts.OnDrop != nil {
		r.opts.OnDrop(reason, n)
	}
}

func finite(s types.Sample) bool {
	for _, v := range [...]float64{s.EDA, s.PZT, s.PPG} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
