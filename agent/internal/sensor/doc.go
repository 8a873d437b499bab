// Package sensor acquires raw frames from a biosignal device and turns them
// into samples for the shipper.
//
// Frame readers: a serial port streaming text frames "seq v1 v2 ..."
// (serial.go, go.bug.st/serial), a recorded capture in the same format
// played back at the frame period (replay.go), and a synthetic resting
// subject (synthetic.go). Open(ctx, config.SensorConfig) returns a Stream
// around the configured reader.
//
// A Stream keeps every Nth frame by sequence number (Decimator), maps the
// configured analog columns to EDA, respiration and PPG, and skips frames
// that are malformed or too short.
package sensor
