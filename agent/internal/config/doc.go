// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: the `agent:` section; the server section is ignored
//   - AgentConfig: server_endpoint, producer_id, ship_interval, buffer_size,
//     batch_size, server_auth, sensor
//   - AuthConfig: mode (mtls|apikey|none), cert/key/ca files, header, key_env
//   - SensorConfig: type (serial|synthetic|replay), serial port settings,
//     replay path, decimation, channel mapping, pacing interval and the
//     synthetic signal shape
//
// Load(path) reads the YAML file, applies defaults (synthetic sensor, keep
// every 20th frame, 25-sample batches, 1000-sample buffer), then validates.
//
// Watch(ctx, path, onChange) uses fsnotify on the parent directory so
// atomic-save editors (vim, VS Code) keep triggering reloads.
package config
