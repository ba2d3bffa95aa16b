package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  agent_id: line-3
  server_endpoint: "localhost:50051"
  inbox_dir: /var/spool/spc
  poll_interval: 10s
  buffer_size: 50
  sources:
    - id: gauge-station
      type: http
      endpoint: "http://gauge.local/export.csv"
      auth:
        mode: none
    - id: torque
      type: prometheus
      endpoint: "http://torque.local/metrics"
      metric: torque_nm
      usl: 12.5
      lsl: 11.5
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.AgentID != "line-3" {
		t.Errorf("agent_id: got %q", cfg.Agent.AgentID)
	}
	if cfg.Agent.ServerEndpoint != "localhost:50051" {
		t.Errorf("server_endpoint: got %q", cfg.Agent.ServerEndpoint)
	}
	if cfg.Agent.InboxDir != "/var/spool/spc" {
		t.Errorf("inbox_dir: got %q", cfg.Agent.InboxDir)
	}
	if cfg.Agent.PollInterval != 10*time.Second {
		t.Errorf("poll_interval: got %v", cfg.Agent.PollInterval)
	}
	if cfg.Agent.BufferSize != 50 {
		t.Errorf("buffer_size: got %d", cfg.Agent.BufferSize)
	}
	if len(cfg.Agent.Sources) != 2 {
		t.Fatalf("sources: got %d, want 2", len(cfg.Agent.Sources))
	}
	prom := cfg.Agent.Sources[1]
	if prom.Metric != "torque_nm" || prom.USL != 12.5 || prom.LSL != 11.5 {
		t.Errorf("prometheus source: got %+v", prom)
	}
	if prom.SerialLabel != "serial" {
		t.Errorf("serial_label default: got %q, want serial", prom.SerialLabel)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
agent:
  server_endpoint: "localhost:50051"
`)
	if cfg.Agent.PollInterval != DefaultPollInterval {
		t.Errorf("default poll_interval: got %v, want %v", cfg.Agent.PollInterval, DefaultPollInterval)
	}
	if cfg.Agent.BufferSize != DefaultBufferSize {
		t.Errorf("default buffer_size: got %d, want %d", cfg.Agent.BufferSize, DefaultBufferSize)
	}
	if cfg.Agent.InboxDir != DefaultInboxDir {
		t.Errorf("default inbox_dir: got %q, want %q", cfg.Agent.InboxDir, DefaultInboxDir)
	}
	host, _ := os.Hostname()
	if cfg.Agent.AgentID != host {
		t.Errorf("default agent_id: got %q, want hostname %q", cfg.Agent.AgentID, host)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing server endpoint",
			yaml: `
agent:
  inbox_dir: in
`,
		},
		{
			name: "unknown source type",
			yaml: `
agent:
  server_endpoint: "localhost:50051"
  sources:
    - id: mystery
      type: ftp
      endpoint: "ftp://x"
`,
		},
		{
			name: "prometheus without metric",
			yaml: `
agent:
  server_endpoint: "localhost:50051"
  sources:
    - id: torque
      type: prometheus
      endpoint: "http://torque.local/metrics"
`,
		},
		{
			name: "duplicate source id",
			yaml: `
agent:
  server_endpoint: "localhost:50051"
  sources:
    - id: a
      type: http
      endpoint: "http://a/x.csv"
    - id: a
      type: http
      endpoint: "http://b/x.csv"
`,
		},
		{
			name: "unknown auth mode",
			yaml: `
agent:
  server_endpoint: "localhost:50051"
  sources:
    - id: a
      type: http
      endpoint: "http://a/x.csv"
      auth:
        mode: magictoken
`,
		},
		{
			name: "unknown server auth mode",
			yaml: `
agent:
  server_endpoint: "localhost:50051"
  server_auth:
    mode: bearer
`,
		},
		{
			name: "negative poll interval",
			yaml: `
agent:
  server_endpoint: "localhost:50051"
  poll_interval: -1s
`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Secrets(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	t.Setenv("TEST_PASSWORD", "hunter2")

	a := AuthConfig{KeyEnv: "TEST_API_KEY", TokenEnv: "TEST_BEARER_TOKEN", PasswordEnv: "TEST_PASSWORD"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q", got)
	}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q", got)
	}
	if got := a.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q", got)
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	write := func(endpoint string) {
		content := "agent:\n  server_endpoint: \"" + endpoint + "\"\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("a:1")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan string, 4)
	go func() {
		_ = Watch(ctx, path, func(c *Config) { got <- c.Agent.ServerEndpoint })
	}()

	// let the watcher register before writing
	time.Sleep(100 * time.Millisecond)
	write("b:2")

	select {
	case ep := <-got:
		if ep != "b:2" {
			t.Errorf("reloaded endpoint = %q, want b:2", ep)
		}
	case <-ctx.Done():
		t.Fatal("no reload observed")
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

func TestRemovedSources(t *testing.T) {
	withSources := func(ids ...string) *Config {
		cfg := &Config{}
		for _, id := range ids {
			cfg.Agent.Sources = append(cfg.Agent.Sources, Source{ID: id})
		}
		return cfg
	}

	tests := []struct {
		name         string
		old, updated *Config
		want         []string
	}{
		{"unchanged", withSources("a", "b"), withSources("b", "a"), nil},
		{"one dropped", withSources("a", "b", "c"), withSources("a", "c"), []string{"b"}},
		{"all dropped", withSources("a", "b"), withSources(), []string{"a", "b"}},
		{"added only", withSources("a"), withSources("a", "z"), nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RemovedSources(tc.old, tc.updated)
			if len(got) != len(tc.want) {
				t.Fatalf("RemovedSources = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("RemovedSources = %v, want %v", got, tc.want)
				}
			}
		})
	}
}
