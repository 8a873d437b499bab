package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/biomirror/biomirror/server/internal/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Only the agent section is present; the server falls back to defaults.
	p := writeConfig(t, `agent:
  server_endpoint: "localhost:50051"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != DefaultGRPCPort || s.HTTPPort != DefaultHTTPPort {
		t.Errorf("ports: got %d/%d", s.GRPCPort, s.HTTPPort)
	}
	if s.Session.Calibration != 3*time.Second {
		t.Errorf("session.calibration: got %v, want 3s", s.Session.Calibration)
	}
	if s.Session.SeriesLength != 150 {
		t.Errorf("session.series_length: got %d, want 150", s.Session.SeriesLength)
	}
	if s.Pipeline != pipeline.DefaultParams() {
		t.Errorf("pipeline: got %+v, want defaults", s.Pipeline)
	}
	if s.MQTT.Enabled() {
		t.Error("mqtt should be disabled without a broker")
	}
}

func TestLoad_FullServer(t *testing.T) {
	t.Setenv("TEST_MQTT_PASSWORD", "hunter2")
	p := writeConfig(t, `server:
  grpc_port: 9090
  http_port: 9091
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-bio-key
  relay:
    client_buffer: 8
    subscriber_buffer: 32
  session:
    calibration: 5s
    display_rate: 30
    series_length: 300
  pipeline:
    refractory: 350ms
    tolerance: 4
  producers:
    ttl: 10m
  mqtt:
    broker: tcp://localhost:1883
    topic: lab/+/frames
    qos: 1
    password_env: TEST_MQTT_PASSWORD
  alerts:
    rules:
      - name: unstable
        condition: stability_score > 8
        severity: critical
        cooldown: 30s
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 {
		t.Errorf("grpc_port: got %d, want 9090", s.GRPCPort)
	}
	if s.Auth.EffectiveHeader() != "x-bio-key" {
		t.Errorf("header: got %q, want x-bio-key", s.Auth.EffectiveHeader())
	}
	if s.Relay.ClientBuffer != 8 || s.Relay.SubscriberBuffer != 32 {
		t.Errorf("relay: got %+v", s.Relay)
	}
	if s.Session.Calibration != 5*time.Second || s.Session.DisplayRate != 30 {
		t.Errorf("session: got %+v", s.Session)
	}
	if s.Pipeline.Refractory != 350*time.Millisecond || s.Pipeline.Tolerance != 4 {
		t.Errorf("pipeline overrides not applied: %+v", s.Pipeline)
	}
	// Fields absent from the file keep their defaults.
	if s.Pipeline.WindowSize != 50 || s.Pipeline.MaxBlur != 20 {
		t.Errorf("pipeline defaults lost: %+v", s.Pipeline)
	}
	if !s.MQTT.Enabled() || s.MQTT.Topic != "lab/+/frames" || s.MQTT.ClientID != DefaultMQTTClientID {
		t.Errorf("mqtt: got %+v", s.MQTT)
	}
	if s.MQTT.Password() != "hunter2" {
		t.Errorf("mqtt password: got %q", s.MQTT.Password())
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Cooldown != 30*time.Second {
		t.Errorf("alerts: got %+v", s.Alerts.Rules)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown auth mode": "server:\n  auth:\n    mode: oauth2\n",
		"bad port":          "server:\n  grpc_port: 70000\n",
		"zero calibration":  "server:\n  session:\n    calibration: 0s\n",
		"bad display rate":  "server:\n  session:\n    display_rate: 1000\n",
		"bad pipeline":      "server:\n  pipeline:\n    alpha_eda: 2\n",
		"bad qos":           "server:\n  mqtt:\n    qos: 3\n",
		"rule without name": "server:\n  alerts:\n    rules:\n      - condition: heart_rate > 100\n",
		"not yaml":          "server: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "server:\n  http_port: 8080\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 16)
	go Watch(ctx, p, func(c *Config) { got <- c }) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)             // let the watcher register

	if err := os.WriteFile(p, []byte("server:\n  http_port: 9999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// A truncating write can surface as several events; wait for the final one.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-got:
			if c.Server.HTTPPort == 9999 {
				return
			}
		case <-deadline:
			t.Fatal("no reload with http_port 9999 after write")
		}
	}
}
