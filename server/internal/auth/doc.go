// Package auth guards the producer-facing and control endpoints of
// biomirror-server with a shared API key.
//
// APIKeyInterceptor protects the gRPC SampleRelay service; Middleware
// protects HTTP routes (session start and the /ws/publish producer socket).
// Browsers cannot set headers on a WebSocket upgrade, so Middleware also
// accepts the key as the "key" query parameter.
//
// When mode != "apikey" or the key is empty, every call passes through,
// which is the local development setup.
package auth
