package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/biomirror/biomirror/server/internal/pipeline"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over output fields:
	// "stability_score > 5", "heart_rate > 120", "heart_rate == unavailable".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 1 minute if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultGRPCPort         = 50051
	DefaultHTTPPort         = 8080
	DefaultCalibration      = 3 * time.Second
	DefaultDisplayRate      = 60
	DefaultSeriesLength     = 150
	DefaultProducerTTL      = 5 * time.Minute
	DefaultClientBuffer     = 64
	DefaultSubscriberBuffer = 256
	DefaultMQTTTopic        = "biomirror/+/samples"
	DefaultMQTTClientID     = "biomirror-server"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the gRPC receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort serves the REST API, the WebSocket hubs and /metrics (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates producers and control calls.
	Auth AuthConfig `yaml:"auth"`

	Relay     RelayConfig     `yaml:"relay"`
	Session   SessionConfig   `yaml:"session"`
	Pipeline  pipeline.Params `yaml:"pipeline"`
	Producers ProducersConfig `yaml:"producers"`
	MQTT      MQTTConfig      `yaml:"mqtt"`

	// Alerts holds rule definitions and webhook delivery targets.
	// Rules and webhooks are hot-reloaded when the file changes.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key (and HTTP header name) to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// RelayConfig sizes the relay hub's buffers.
type RelayConfig struct {
	// ClientBuffer is the per-observer queue; a full queue disconnects the observer.
	ClientBuffer int `yaml:"client_buffer"`

	// SubscriberBuffer is the session's sample queue; a full queue drops samples.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// SessionConfig controls the presentation session.
type SessionConfig struct {
	Calibration  time.Duration `yaml:"calibration"`
	DisplayRate  float64       `yaml:"display_rate"` // Hz
	SeriesLength int           `yaml:"series_length"`
}

// ProducersConfig controls the producer registry.
type ProducersConfig struct {
	// TTL is how long a silent producer stays listed. Default: 5m.
	TTL time.Duration `yaml:"ttl"`
}

// MQTTConfig enables MQTT ingress when Broker is set.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	Topic       string `yaml:"topic"`
	ClientID    string `yaml:"client_id"`
	QoS         int    `yaml:"qos"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool { return m.Broker != "" }

// Password returns the broker password resolved from the environment.
func (m MQTTConfig) Password() string {
	if m.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(m.PasswordEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
			Relay: RelayConfig{
				ClientBuffer:     DefaultClientBuffer,
				SubscriberBuffer: DefaultSubscriberBuffer,
			},
			Session: SessionConfig{
				Calibration:  DefaultCalibration,
				DisplayRate:  DefaultDisplayRate,
				SeriesLength: DefaultSeriesLength,
			},
			Pipeline:  pipeline.DefaultParams(),
			Producers: ProducersConfig{TTL: DefaultProducerTTL},
			MQTT: MQTTConfig{
				Topic:    DefaultMQTTTopic,
				ClientID: DefaultMQTTClientID,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Relay.ClientBuffer <= 0 || s.Relay.SubscriberBuffer <= 0 {
		return fmt.Errorf("server.relay buffers must be positive")
	}
	if s.Session.Calibration <= 0 {
		return fmt.Errorf("server.session.calibration must be positive")
	}
	if s.Session.DisplayRate <= 0 || s.Session.DisplayRate > 240 {
		return fmt.Errorf("server.session.display_rate %.1f is out of range (0, 240]", s.Session.DisplayRate)
	}
	if s.Session.SeriesLength <= 0 {
		return fmt.Errorf("server.session.series_length must be positive")
	}
	if err := s.Pipeline.Validate(); err != nil {
		return fmt.Errorf("server.pipeline: %w", err)
	}
	if s.Producers.TTL < 0 {
		return fmt.Errorf("server.producers.ttl must not be negative")
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		return fmt.Errorf("server.mqtt.qos %d must be 0, 1 or 2", s.MQTT.QoS)
	}
	for i, r := range s.Alerts.Rules {
		if r.Name == "" || r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name and condition are required", i)
		}
	}
	return nil
}
