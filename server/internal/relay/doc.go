// Package relay fans events out to WebSocket observers and in-process
// subscribers.
//
// A Hub is a best-effort broadcaster: every Broadcast is marshalled once and
// queued on each observer's send buffer. An observer whose buffer is full is
// disconnected; the producer is never blocked.
//
// Two hubs run in the server:
//
//   - the sample relay, fed by PublishSample from the gRPC receiver, the MQTT
//     subscriber and producers connected to /ws/publish. Observers on
//     /ws/samples get {"event":"sensor_update","data":{"eda":..,"pzt":..,"ppg":..}}.
//     The session consumes the same samples through Subscribe.
//   - the output hub on /ws/session, carrying "output", "visual" and "state"
//     events from the session.
//
// Samples from a single producer reach every observer and subscriber in the
// order they were published. Nothing is replayed to late joiners.
package relay
