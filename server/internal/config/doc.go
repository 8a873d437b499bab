// Package config loads the server-side configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort             port for the gRPC receiver (default 50051)
//   - HTTPPort             REST API, WebSocket hubs and /metrics (default 8080)
//   - Auth.Mode            "apikey" or "none"
//   - Auth.KeyEnv          environment variable holding the expected API key
//   - Auth.Header          gRPC metadata/HTTP header name (default "x-api-key")
//   - Relay                observer and subscriber buffer depths
//   - Session              calibration window (3s), display rate (60 Hz), chart length (150)
//   - Pipeline             every signal-processing constant, defaults from pipeline.DefaultParams
//   - Producers.TTL        how long a silent producer stays listed (default 5m)
//   - MQTT                 optional broker ingress, enabled when broker is set
//   - Alerts               rules over output fields plus webhook targets
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads the file on change; the server applies only
// the alerts section at runtime.
package config
