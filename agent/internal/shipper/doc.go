// Package shipper sends sample batches to biomirror-server via gRPC
// (SampleRelay.Publish unary RPC, JSON codec from pkg/wire).
//
// Shipper.Ship() is non-blocking: samples go into an in-memory channel
// (default capacity 1000). When the buffer is full the oldest sample is
// evicted, so the newest data is always kept and order is preserved.
//
// Shipper.Run() collects up to batch_size samples, or whatever arrived within
// ship_interval of the first one, and publishes them in one call. It
// reconnects with truncated exponential backoff (1s→60s, ±25% jitter) on
// connection or send errors. A batch that fails to send is dropped: the relay
// is best effort and samples are never re-queued behind newer ones.
// Permanent gRPC errors (Unauthenticated, PermissionDenied, InvalidArgument)
// discard the batch without reconnecting.
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
package shipper
