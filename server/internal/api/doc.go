// Package api implements the HTTP REST API for biomirror-server.
//
// New(deps) returns an http.Handler that serves:
//
//	GET  /api/v1/health         status, session state, producer/observer counts
//	GET  /api/v1/session        session snapshot plus diagnostics
//	POST /api/v1/session/start  Idle -> Calibrating; 409 if already started
//	GET  /api/v1/output         newest output tuple; 404 before the first one
//	GET  /api/v1/series         recent outputs, oldest first (?limit=N)
//	GET  /api/v1/alerts         firing and recently resolved alerts
//	GET  /api/v1/producers      live sample producers
//	GET  /api/v1/diagnostics    plain-English hints about the session
//	GET  /charts                HTML line charts of the recent series
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for the wrong method. No external HTTP framework is used.
package api
