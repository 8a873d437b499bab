package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultShipInterval = 100 * time.Millisecond
	DefaultBufferSize   = 1000
	DefaultBatchSize    = 25
	DefaultBaudRate     = 115200
	DefaultDecimation   = 20
	DefaultInterval     = time.Millisecond
	DefaultAuthHeader   = "x-api-key"
)

// Sensor types.
const (
	SensorSerial    = "serial"
	SensorSynthetic = "synthetic"
	SensorReplay    = "replay"
)

// Config is the top-level agent configuration. The `server:` key in the same
// file is ignored.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of biomirror-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// ProducerID names this agent on the server. Defaults to the hostname.
	ProducerID string `yaml:"producer_id"`

	// ShipInterval bounds how long a partial batch waits before it is sent.
	ShipInterval time.Duration `yaml:"ship_interval"`

	// BufferSize is the maximum number of samples held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// BatchSize is the maximum number of samples per Publish call.
	BatchSize int `yaml:"batch_size"`

	// ServerAuth configures how the agent authenticates to biomirror-server.
	ServerAuth AuthConfig `yaml:"server_auth"`

	// Sensor selects and configures the sample source.
	Sensor SensorConfig `yaml:"sensor"`
}

// AuthConfig specifies how the agent authenticates to the server.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields, used when Mode == "apikey".
	// Header is the gRPC metadata key to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// SensorConfig describes where samples come from.
type SensorConfig struct {
	// Type is one of: serial | synthetic | replay.
	Type string `yaml:"type"`

	// Serial port fields, used when Type == "serial".
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"`

	// Path is the recording read when Type == "replay".
	Path string `yaml:"path"`

	// Decimation keeps frames whose sequence number is a multiple of it.
	// 1 keeps every frame.
	Decimation int `yaml:"decimation"`

	// Channels maps analog columns of a frame to signals.
	Channels ChannelMap `yaml:"channels"`

	// Interval is the frame period of replay and synthetic sources.
	// The default of 1ms matches a 1 kHz acquisition.
	Interval time.Duration `yaml:"interval"`

	Synthetic SyntheticConfig `yaml:"synthetic"`
}

// ChannelMap holds zero-based analog column indexes.
type ChannelMap struct {
	EDA int `yaml:"eda"`
	PZT int `yaml:"pzt"`
	PPG int `yaml:"ppg"`
}

// SyntheticConfig shapes the generated signals.
type SyntheticConfig struct {
	HeartRate     float64 `yaml:"heart_rate"` // beats per minute
	PPGAmplitude  float64 `yaml:"ppg_amplitude"`
	PPGOffset     float64 `yaml:"ppg_offset"`
	EDA           float64 `yaml:"eda"`
	RespRate      float64 `yaml:"resp_rate"` // breaths per minute
	RespAmplitude float64 `yaml:"resp_amplitude"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if cfg.Agent.ProducerID == "" {
		cfg.Agent.ProducerID = defaultProducerID()
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaultProducerID is the hostname, or a random ID when it is unknown.
func defaultProducerID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "agent-" + uuid.NewString()[:8]
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ShipInterval: DefaultShipInterval,
			BufferSize:   DefaultBufferSize,
			BatchSize:    DefaultBatchSize,
			ServerAuth:   AuthConfig{Header: DefaultAuthHeader},
			Sensor: SensorConfig{
				Type:       SensorSynthetic,
				BaudRate:   DefaultBaudRate,
				DataBits:   8,
				StopBits:   1,
				Parity:     "none",
				Decimation: DefaultDecimation,
				Channels:   ChannelMap{EDA: 0, PZT: 1, PPG: 2},
				Interval:   DefaultInterval,
				Synthetic: SyntheticConfig{
					HeartRate:     70,
					PPGAmplitude:  200,
					PPGOffset:     512,
					EDA:           5,
					RespRate:      15,
					RespAmplitude: 40,
				},
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.ProducerID == "" {
		return fmt.Errorf("agent.producer_id is required")
	}
	if a.ShipInterval <= 0 {
		return fmt.Errorf("agent.ship_interval must be positive")
	}
	if a.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	if a.BatchSize <= 0 || a.BatchSize > a.BufferSize {
		return fmt.Errorf("agent.batch_size must be in [1, buffer_size]")
	}
	switch a.ServerAuth.Mode {
	case "mtls", "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth: unknown mode %q", a.ServerAuth.Mode)
	}

	s := a.Sensor
	switch s.Type {
	case SensorSerial:
		if s.Device == "" {
			return fmt.Errorf("agent.sensor.device is required for type serial")
		}
	case SensorReplay:
		if s.Path == "" {
			return fmt.Errorf("agent.sensor.path is required for type replay")
		}
	case SensorSynthetic:
		if s.Synthetic.HeartRate <= 0 {
			return fmt.Errorf("agent.sensor.synthetic.heart_rate must be positive")
		}
	default:
		return fmt.Errorf("agent.sensor: unknown type %q", s.Type)
	}
	if s.Decimation <= 0 {
		return fmt.Errorf("agent.sensor.decimation must be positive")
	}
	if s.Interval <= 0 {
		return fmt.Errorf("agent.sensor.interval must be positive")
	}
	if s.Channels.EDA < 0 || s.Channels.PZT < 0 || s.Channels.PPG < 0 {
		return fmt.Errorf("agent.sensor.channels: indexes must be non-negative")
	}
	switch strings.ToLower(s.Parity) {
	case "none", "n", "even", "e", "odd", "o", "":
	default:
		return fmt.Errorf("agent.sensor.parity %q: want none|even|odd", s.Parity)
	}
	return nil
}
