package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scrubgate configuration. Loaded once at startup; each query
// observes one immutable snapshot (see Snapshot).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detection DetectionConfig `yaml:"detection"`
	Agent     AgentConfig     `yaml:"agent"`
	Clients   []ClientConfig  `yaml:"clients"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Addr                string   `yaml:"addr"` // HTTP listen address, e.g. ":8080"
	ReadHeaderTimeout   Duration `yaml:"read_header_timeout"`
	ReadTimeout         Duration `yaml:"read_timeout"`
	WriteTimeout        Duration `yaml:"write_timeout"`
	IdleTimeout         Duration `yaml:"idle_timeout"`
	MaxRequestBodyBytes int64    `yaml:"max_request_body_bytes"`
	RequestTTL          Duration `yaml:"request_ttl"` // retention for /v1/requests lookups
	WatchConfig         bool     `yaml:"watch_config"`
}

// DetectionConfig configures the entity-detection boundary and the policy
// applied to its output.
type DetectionConfig struct {
	Provider            string   `yaml:"provider"`     // azure | regex
	Endpoint            string   `yaml:"endpoint"`     // language service endpoint
	APIKeyEnv           string   `yaml:"api_key_env"`  // env var holding the service key
	Mode                string   `yaml:"mode"`         // redact | reject
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	Domain              string   `yaml:"domain"`   // general | healthcare
	Language            string   `yaml:"language"` // BCP-47, e.g. "en"
	ScrubResponses      bool     `yaml:"scrub_responses"`
	Timeout             Duration `yaml:"timeout"`
	MaxResponseBytes    int64    `yaml:"max_response_bytes"`
}

// AgentConfig configures the grounded-agent boundary.
type AgentConfig struct {
	Endpoint         string   `yaml:"endpoint"`    // agents project endpoint
	APIKeyEnv        string   `yaml:"api_key_env"` // env var holding the agents key
	APIVersion       string   `yaml:"api_version"`
	AgentID          string   `yaml:"agent_id"` // reuse an existing agent instead of creating one
	AgentName        string   `yaml:"agent_name"`
	Model            string   `yaml:"model"`
	Instructions     string   `yaml:"instructions"`
	BingConnectionID string   `yaml:"bing_connection_id"`
	EnableGrounding  bool     `yaml:"enable_grounding"`
	GroundingNudge   bool     `yaml:"grounding_nudge"` // append a web-search nudge to submitted messages
	RunTimeout       Duration `yaml:"run_timeout"`
	PollInterval     Duration `yaml:"poll_interval"`
	Timeout          Duration `yaml:"timeout"` // per HTTP call
	MaxResponseBytes int64    `yaml:"max_response_bytes"`
}

// ClientConfig binds API keys to a caller identity. Mode and threshold, when
// set, override the detection defaults for that caller.
type ClientConfig struct {
	ID                  string   `yaml:"id"`
	APIKeys             []string `yaml:"api_keys"`
	Mode                string   `yaml:"mode"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
}

type AuditConfig struct {
	Enabled         bool          `yaml:"enabled"`
	FilePath        string        `yaml:"file_path"` // JSONL audit trail; empty disables the file sink
	Webhook         WebhookConfig `yaml:"webhook"`
	QueueSize       int           `yaml:"queue_size"`
	Workers         int           `yaml:"workers"`
	ShutdownTimeout Duration      `yaml:"shutdown_timeout"`
}

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Timeout Duration          `yaml:"timeout"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
	Service  string `yaml:"service"`
	Version  string `yaml:"version"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration wraps time.Duration with yaml decoding of values like "60s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultConfig()
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Detection: DetectionConfig{
			Provider:            "azure",
			Mode:                "redact",
			ConfidenceThreshold: 0.8,
			Domain:              "healthcare",
			Language:            "en",
		},
		Agent: AgentConfig{
			AgentName:       "HealthcareAssistant",
			Model:           "gpt-4o",
			EnableGrounding: true,
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadHeaderTimeout <= 0 {
		cfg.Server.ReadHeaderTimeout = Duration(5 * time.Second)
	}
	if cfg.Server.MaxRequestBodyBytes <= 0 {
		cfg.Server.MaxRequestBodyBytes = 1 << 20
	}
	if cfg.Server.RequestTTL <= 0 {
		cfg.Server.RequestTTL = Duration(30 * time.Minute)
	}

	if cfg.Detection.Provider == "" {
		cfg.Detection.Provider = "azure"
	}
	if cfg.Detection.Mode == "" {
		cfg.Detection.Mode = "redact"
	}
	if cfg.Detection.ConfidenceThreshold == 0 {
		cfg.Detection.ConfidenceThreshold = 0.8
	}
	if cfg.Detection.Domain == "" {
		cfg.Detection.Domain = "general"
	}
	if cfg.Detection.Language == "" {
		cfg.Detection.Language = "en"
	}
	if cfg.Detection.Timeout <= 0 {
		cfg.Detection.Timeout = Duration(10 * time.Second)
	}
	if cfg.Detection.MaxResponseBytes <= 0 {
		cfg.Detection.MaxResponseBytes = 4 << 20
	}

	if cfg.Agent.APIVersion == "" {
		cfg.Agent.APIVersion = "2025-05-01"
	}
	if cfg.Agent.AgentName == "" {
		cfg.Agent.AgentName = "HealthcareAssistant"
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = "gpt-4o"
	}
	if cfg.Agent.RunTimeout <= 0 {
		cfg.Agent.RunTimeout = Duration(60 * time.Second)
	}
	if cfg.Agent.PollInterval <= 0 {
		cfg.Agent.PollInterval = Duration(2 * time.Second)
	}
	if cfg.Agent.Timeout <= 0 {
		cfg.Agent.Timeout = Duration(30 * time.Second)
	}
	if cfg.Agent.MaxResponseBytes <= 0 {
		cfg.Agent.MaxResponseBytes = 4 << 20
	}

	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1000
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 1
	}
	if cfg.Audit.ShutdownTimeout <= 0 {
		cfg.Audit.ShutdownTimeout = Duration(2 * time.Second)
	}
	if cfg.Audit.Webhook.Timeout <= 0 {
		cfg.Audit.Webhook.Timeout = Duration(2 * time.Second)
	}

	if cfg.Telemetry.Service == "" {
		cfg.Telemetry.Service = "scrubgate"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
