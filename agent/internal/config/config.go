package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval = 60 * time.Second
	DefaultBufferSize   = 100
	DefaultInboxDir     = "inbox"
)

// Config is the top-level agent configuration.
// Fields map 1:1 to agent.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// AgentID identifies this agent to the server. Defaults to the hostname.
	AgentID string `yaml:"agent_id"`

	// ServerEndpoint is the gRPC address of spc-server (host:port).
	ServerEndpoint string `yaml:"server_endpoint"`

	// InboxDir is watched for measurement sheets (.csv, .xlsx) dropped by
	// operators or test stands. Empty disables the inbox.
	InboxDir string `yaml:"inbox_dir"`

	// PollInterval controls how often each remote source is fetched.
	PollInterval time.Duration `yaml:"poll_interval"`

	// BufferSize is the maximum number of datasets held in memory when
	// the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// Sources is the list of remote measurement sources to poll.
	Sources []Source `yaml:"sources"`

	// ServerAuth configures how the agent authenticates to spc-server.
	// Supports mtls | apikey | none.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// Source describes one remote measurement source.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is http (a CSV/XLSX document served over HTTP) or prometheus
	// (one gauge series per part on a metrics endpoint).
	Type string `yaml:"type"`

	// Endpoint is the full URL to fetch.
	Endpoint string `yaml:"endpoint"`

	// Metric, SerialLabel, USL and LSL are used when Type == "prometheus".
	// Each series of Metric becomes one record whose serial is the value of
	// SerialLabel; exposition formats carry no limits so they come from here.
	Metric      string  `yaml:"metric"`
	SerialLabel string  `yaml:"serial_label"`
	USL         float64 `yaml:"usl"`
	LSL         float64 `yaml:"lsl"`

	// Auth configures how the agent authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header (or gRPC metadata key) carrying the API key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if cfg.Agent.AgentID == "" {
		cfg.Agent.AgentID, _ = os.Hostname()
	}
	for i := range cfg.Agent.Sources {
		src := &cfg.Agent.Sources[i]
		if src.Type == "prometheus" && src.SerialLabel == "" {
			src.SerialLabel = "serial"
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			InboxDir:     DefaultInboxDir,
			PollInterval: DefaultPollInterval,
			BufferSize:   DefaultBufferSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Agent.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if cfg.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive")
	}
	if cfg.Agent.BufferSize <= 0 {
		return fmt.Errorf("agent.buffer_size must be positive")
	}
	switch cfg.Agent.ServerAuth.Mode {
	case "mtls", "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth: unknown mode %q", cfg.Agent.ServerAuth.Mode)
	}

	seen := make(map[string]bool, len(cfg.Agent.Sources))
	for i, src := range cfg.Agent.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		switch src.Type {
		case "http":
		case "prometheus":
			if src.Metric == "" {
				return fmt.Errorf("sources[%d] %q: metric is required for prometheus sources", i, src.ID)
			}
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}
	return nil
}

// RemovedSources returns the IDs of sources present in old but absent from
// updated, in old's order.
func RemovedSources(old, updated *Config) []string {
	keep := make(map[string]bool, len(updated.Agent.Sources))
	for _, src := range updated.Agent.Sources {
		keep[src.ID] = true
	}
	var gone []string
	for _, src := range old.Agent.Sources {
		if !keep[src.ID] {
			gone = append(gone, src.ID)
		}
	}
	return gone
}
