package shipper

import (
	"context"
	"time"

	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/pkg/wire"
)

// collect blocks for the first buffered sample, then gathers more until the
// batch is full or maxWait has passed since the first one. It returns false
// when ctx is cancelled; a partial batch is then dropped.
func collect(ctx context.Context, buf <-chan types.Sample, size int, maxWait time.Duration) ([]types.Sample, bool) {
	var first types.Sample
	select {
	case <-ctx.Done():
		return nil, false
	case first = <-buf:
	}

	batch := make([]types.Sample, 1, size)
	batch[0] = first

	timer := time.NewTimer(maxWait)
	defer timer.Stop()
	for len(batch) < size {
		select {
		case <-ctx.Done():
			return nil, false
		case <-timer.C:
			return batch, true
		case s := <-buf:
			batch = append(batch, s)
		}
	}
	return batch, true
}

// toRequest wraps a batch for the SampleRelay Publish call.
func toRequest(producer string, batch []types.Sample) *wire.PublishRequest {
	return &wire.PublishRequest{ProducerID: producer, Samples: batch}
}
