// Package types defines shared Go types used by both the agent and server.
// These are the canonical in-memory representations of sensor samples and
// pipeline output, separate from the gRPC wire envelope in pkg/wire.
package types
