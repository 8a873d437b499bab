// Package session runs one presentation session on a single goroutine.
//
// The loop in Session.Run serialises three event sources: relayed samples,
// the display ticker and the fire-once calibration timer. It is the only
// code that touches the pipeline; the API reads copies through Snapshot.
//
// Lifecycle:
//
//	Idle         samples are ignored
//	Calibrating  each sample seeds the EDA/PZT references (3s by default)
//	Running      each sample produces an output tuple that is broadcast as an
//	             "output" event and handed to every Recorder
//
// While running, the display ticker moves the visual distortion toward its
// target and broadcasts "visual" events. A stalled sample stream freezes the
// score but the visual value keeps converging.
package session
