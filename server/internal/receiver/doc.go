// Package receiver accepts sample batches from producers and hands them to
// the relay.
//
// Receiver implements wire.SampleRelayServer, the gRPC endpoint used by
// biomirror-agent. Publish rejects a batch without producer_id or samples
// with codes.InvalidArgument, drops samples carrying NaN or ±Inf (logged and
// counted), and relays the rest in order. Authentication is enforced upstream
// by the gRPC server interceptor (see package auth).
//
// MQTTSubscriber feeds the same Ingest path from an MQTT topic filter such as
// "biomirror/+/samples", taking the producer ID from the wildcard segment.
package receiver
