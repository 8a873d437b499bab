// Package wire declares the agent→server gRPC contract.
//
// Messages are plain Go structs carried by a JSON codec registered under the
// content-subtype "json" (requests travel as application/grpc+json), so no
// generated code is required. The service is biomirror.v1.SampleRelay with a
// single unary method:
//
//	Publish(PublishRequest{producer_id, samples[]}) → PublishResponse{ok, accepted, message}
//
// Samples inside one request are in producer order; the server relays them in
// that order.
package wire
