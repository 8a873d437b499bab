package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:50051"
  producer_id: bitalino-1
  ship_interval: 50ms
  buffer_size: 500
  batch_size: 10
  sensor:
    type: serial
    device: /dev/ttyUSB0
    baud_rate: 57600
    parity: even
    decimation: 10
    channels: {eda: 2, pzt: 0, ppg: 1}
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.ServerEndpoint != "localhost:50051" || a.ProducerID != "bitalino-1" {
		t.Errorf("endpoint/producer: got %q/%q", a.ServerEndpoint, a.ProducerID)
	}
	if a.ShipInterval != 50*time.Millisecond {
		t.Errorf("ship_interval: got %v", a.ShipInterval)
	}
	if a.BufferSize != 500 || a.BatchSize != 10 {
		t.Errorf("buffer/batch: got %d/%d", a.BufferSize, a.BatchSize)
	}
	want := SensorConfig{
		Type:       SensorSerial,
		Device:     "/dev/ttyUSB0",
		BaudRate:   57600,
		DataBits:   8,
		StopBits:   1,
		Parity:     "even",
		Decimation: 10,
		Channels:   ChannelMap{EDA: 2, PZT: 0, PPG: 1},
		Interval:   DefaultInterval,
		Synthetic:  defaults().Agent.Sensor.Synthetic,
	}
	if diff := cmp.Diff(want, a.Sensor); diff != "" {
		t.Errorf("sensor mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:50051"
`
	cfg := loadFromString(t, yaml)
	a := cfg.Agent

	if a.ShipInterval != DefaultShipInterval {
		t.Errorf("default ship_interval: got %v, want %v", a.ShipInterval, DefaultShipInterval)
	}
	if a.BufferSize != DefaultBufferSize || a.BatchSize != DefaultBatchSize {
		t.Errorf("default buffer/batch: got %d/%d", a.BufferSize, a.BatchSize)
	}
	if a.Sensor.Type != SensorSynthetic || a.Sensor.Decimation != DefaultDecimation {
		t.Errorf("default sensor: got type=%q decimation=%d", a.Sensor.Type, a.Sensor.Decimation)
	}
	if a.ServerAuth.Header != DefaultAuthHeader {
		t.Errorf("default auth header: got %q", a.ServerAuth.Header)
	}
	if a.ProducerID == "" {
		t.Error("producer_id should default to the hostname")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing endpoint", `
agent:
  producer_id: a
`},
		{"unknown sensor", `
agent:
  server_endpoint: "localhost:50051"
  sensor: {type: bluetooth}
`},
		{"serial without device", `
agent:
  server_endpoint: "localhost:50051"
  sensor: {type: serial}
`},
		{"replay without path", `
agent:
  server_endpoint: "localhost:50051"
  sensor: {type: replay}
`},
		{"batch above buffer", `
agent:
  server_endpoint: "localhost:50051"
  buffer_size: 10
  batch_size: 20
`},
		{"zero decimation", `
agent:
  server_endpoint: "localhost:50051"
  sensor: {decimation: 0}
`},
		{"bad parity", `
agent:
  server_endpoint: "localhost:50051"
  sensor: {parity: mark}
`},
		{"unknown auth mode", `
agent:
  server_endpoint: "localhost:50051"
  server_auth: {mode: magictoken}
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_AuthModes(t *testing.T) {
	for _, mode := range []string{"mtls", "apikey", "none", ""} {
		t.Run("mode="+mode, func(t *testing.T) {
			yaml := `
agent:
  server_endpoint: "localhost:50051"
  server_auth:
    mode: "` + mode + `"
`
			cfg := loadFromString(t, yaml)
			if cfg.Agent.ServerAuth.Mode != mode {
				t.Errorf("auth mode: got %q, want %q", cfg.Agent.ServerAuth.Mode, mode)
			}
		})
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
	if got := (AuthConfig{Mode: "apikey"}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestWatch_ReloadsOnRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	write := func(name, decimation string) {
		t.Helper()
		content := "agent:\n  server_endpoint: \"localhost:50051\"\n  sensor:\n    decimation: " + decimation + "\n"
		if err := os.WriteFile(name, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(path, "20")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int, 16)
	go Watch(ctx, path, func(c *Config) { got <- c.Agent.Sensor.Decimation }) //nolint:errcheck

	// Atomic save: write a sibling file and rename it over the original.
	// Retry until the watcher is up.
	deadline := time.After(3 * time.Second)
	for {
		tmp := filepath.Join(dir, "config.yaml.tmp")
		write(tmp, "5")
		if err := os.Rename(tmp, path); err != nil {
			t.Fatalf("rename: %v", err)
		}
		select {
		case d := <-got:
			if d == 5 {
				return
			}
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
