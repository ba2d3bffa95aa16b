package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
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

	// Condition is a simple expression over the working-set summary:
	// "cpk < 1.33", "yield_pct < 99", "out_of_spec_count > 0", "grade == poor".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
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
	DefaultGRPCPort          = 50051
	DefaultHTTPPort          = 8080
	DefaultBroadcastInterval = 5 * time.Second
	DefaultSQLitePath        = "spc.db"
	DefaultBackupKey         = "repository.json"
	DefaultMaxUploadBytes    = 32 << 20
)

// Config holds the server-side configuration parsed from the `server:` section
// of the config file.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port the dataset receiver listens on (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates incoming gRPC and REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Storage selects where the dataset collection is persisted.
	Storage StorageConfig `yaml:"storage"`

	// Backup mirrors the collection to a blob store after every change.
	Backup BackupConfig `yaml:"backup"`

	// BroadcastInterval is how often the websocket hub pushes the summary
	// even when nothing changed (default 5s).
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`

	// MaxUploadBytes caps multipart uploads on POST /api/v1/datasets.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Alerts holds rule definitions and webhook delivery targets.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
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

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is memory | sqlite | postgres (default memory).
	Backend string `yaml:"backend"`

	// Path is the SQLite database file (sqlite only).
	Path string `yaml:"path"`

	// DSNEnv names the environment variable holding the postgres
	// connection string (postgres only).
	DSNEnv string `yaml:"dsn_env"`
}

// DSN returns the postgres connection string resolved from the environment.
func (s StorageConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// BackupConfig selects the blob store the collection is mirrored to.
type BackupConfig struct {
	// Driver is none | fs | s3 (default none).
	Driver string `yaml:"driver"`

	// Dir is the target directory (fs only).
	Dir string `yaml:"dir"`

	// Bucket, Region, Endpoint and PathStyle configure the s3 driver.
	// Endpoint is optional and targets S3-compatible stores such as MinIO.
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`

	// AccessKeyEnv and SecretKeyEnv name environment variables holding
	// static S3 credentials. When unset the default AWS credential chain
	// is used.
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`

	// Key is the object name (default repository.json).
	Key string `yaml:"key"`

	// Restore loads the backup into an empty repository at startup.
	Restore bool `yaml:"restore"`
}

// Credentials returns the static S3 credentials resolved from the
// environment. Both are empty when not configured.
func (b BackupConfig) Credentials() (accessKey, secretKey string) {
	if b.AccessKeyEnv != "" {
		accessKey = os.Getenv(b.AccessKeyEnv)
	}
	if b.SecretKeyEnv != "" {
		secretKey = os.Getenv(b.SecretKeyEnv)
	}
	return accessKey, secretKey
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if cfg.Server.Storage.Backend == "sqlite" && cfg.Server.Storage.Path == "" {
		cfg.Server.Storage.Path = DefaultSQLitePath
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
			GRPCPort:          DefaultGRPCPort,
			HTTPPort:          DefaultHTTPPort,
			BroadcastInterval: DefaultBroadcastInterval,
			MaxUploadBytes:    DefaultMaxUploadBytes,
			Storage:           StorageConfig{Backend: "memory"},
			Backup:            BackupConfig{Driver: "none", Key: DefaultBackupKey},
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
	if s.BroadcastInterval <= 0 {
		return fmt.Errorf("server.broadcast_interval must be positive")
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	switch s.Storage.Backend {
	case "memory", "sqlite":
	case "postgres":
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for postgres")
		}
	default:
		return fmt.Errorf("server.storage.backend %q unknown: want memory|sqlite|postgres", s.Storage.Backend)
	}

	switch s.Backup.Driver {
	case "none", "":
	case "fs":
		if s.Backup.Dir == "" {
			return fmt.Errorf("server.backup.dir is required for the fs driver")
		}
	case "s3":
		if s.Backup.Bucket == "" {
			return fmt.Errorf("server.backup.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("server.backup.driver %q unknown: want none|fs|s3", s.Backup.Driver)
	}
	if s.Backup.Key == "" {
		return fmt.Errorf("server.backup.key must not be empty")
	}

	for i, r := range s.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("server.alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("server.alerts.rules[%d] %q: condition is required", i, r.Name)
		}
	}
	return nil
}
