package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
platform:
  base_url: http://localhost:8032
oracle:
  type: scripted
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Engine.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Engine.InvokeTimeout != 10*time.Second {
		t.Errorf("expected default invoke_timeout 10s, got %v", cfg.Engine.InvokeTimeout)
	}
	if cfg.Storage.Type != "memory" || cfg.Storage.MaxSize != 10000 {
		t.Errorf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Auth.Type != "none" {
		t.Errorf("expected default auth none, got %q", cfg.Auth.Type)
	}
	if !cfg.Observability.Metrics.Enabled || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("unexpected metrics defaults: %+v", cfg.Observability.Metrics)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
server:
  port: 9090
engine:
  max_retries: 5
  max_active_sessions: 8
oracle:
  type: openai
  backend_url: http://llm:8000
  model: qwen3
platform:
  base_url: http://traction:8032
  tenant_id: tn_1
  api_key: secret
storage:
  type: postgres
  postgres:
    dsn: postgres://localhost/ausweis
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Engine.MaxRetries != 5 || cfg.Engine.MaxActiveSessions != 8 {
		t.Errorf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Oracle.Model != "qwen3" {
		t.Errorf("expected model qwen3, got %q", cfg.Oracle.Model)
	}
	// YAML leaves untouched defaults alone.
	if cfg.Engine.ProposalTimeout != 30*time.Second {
		t.Errorf("expected default proposal_timeout, got %v", cfg.Engine.ProposalTimeout)
	}
	if cfg.Storage.Postgres.MaxConns != 25 {
		t.Errorf("expected default max_conns 25, got %d", cfg.Storage.Postgres.MaxConns)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
platform:
  base_url: http://from-yaml:8032
oracle:
  type: scripted
`)

	t.Setenv("AUSWEIS_PORT", "7070")
	t.Setenv("AUSWEIS_PLATFORM_URL", "http://from-env:8032")
	t.Setenv("AUSWEIS_STORAGE_SIZE", "500")
	t.Setenv("AUSWEIS_AUTH_TYPE", "apikey")
	t.Setenv("AUSWEIS_API_KEYS", `[{"key":"k1","subject":"ops","tenant_id":"tn_1"}]`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Platform.BaseURL != "http://from-env:8032" {
		t.Errorf("env must win over yaml, got %q", cfg.Platform.BaseURL)
	}
	if cfg.Storage.MaxSize != 500 {
		t.Errorf("expected max_size 500, got %d", cfg.Storage.MaxSize)
	}
	if len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].Subject != "ops" {
		t.Errorf("unexpected api keys: %+v", cfg.Auth.APIKeys)
	}
}

func TestLoadConfigDiscoveryEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "discovered.yaml", `
server:
  port: 6060
platform:
  base_url: http://traction:8032
oracle:
  type: scripted
`)
	t.Setenv("AUSWEIS_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 6060 {
		t.Errorf("expected port 6060 from discovered file, got %d", cfg.Server.Port)
	}
}

func TestLoadFileReferences(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeFile(t, dir, "platform.key", "platform-secret\n")
	dsnPath := writeFile(t, dir, "dsn", "postgres://localhost/ausweis\n")
	jwtPath := writeFile(t, dir, "jwt.key", "jwt-secret\n")
	path := writeFile(t, dir, "config.yaml", `
platform:
  base_url: http://traction:8032
  api_key_file: `+keyPath+`
oracle:
  type: scripted
storage:
  type: postgres
  postgres:
    dsn_file: `+dsnPath+`
auth:
  type: jwt
  jwt:
    secret_file: `+jwtPath+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Platform.APIKey != "platform-secret" {
		t.Errorf("expected trimmed platform key, got %q", cfg.Platform.APIKey)
	}
	if cfg.Storage.Postgres.DSN != "postgres://localhost/ausweis" {
		t.Errorf("unexpected dsn: %q", cfg.Storage.Postgres.DSN)
	}
	if cfg.Auth.JWT.Secret != "jwt-secret" {
		t.Errorf("unexpected jwt secret: %q", cfg.Auth.JWT.Secret)
	}
}

func TestLoadFileReferenceValueWins(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeFile(t, dir, "platform.key", "from-file")
	path := writeFile(t, dir, "config.yaml", `
platform:
  base_url: http://traction:8032
  api_key: inline
  api_key_file: `+keyPath+`
oracle:
  type: scripted
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Platform.APIKey != "inline" {
		t.Errorf("inline value must win over file, got %q", cfg.Platform.APIKey)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Defaults()
		cfg.Oracle.Type = "scripted"
		cfg.Platform.BaseURL = "http://traction:8032"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{
			"bad port",
			func(c *Config) { c.Server.Port = 0 },
			"server.port",
		},
		{
			"openai without backend",
			func(c *Config) { c.Oracle = OracleConfig{Type: "openai"} },
			"oracle.backend_url",
		},
		{
			"unknown oracle type",
			func(c *Config) { c.Oracle.Type = "tea-leaves" },
			"oracle.type",
		},
		{
			"no platform route",
			func(c *Config) { c.Platform.BaseURL = "" },
			"platform.base_url",
		},
		{
			"mcp server without url",
			func(c *Config) {
				c.Platform.MCPServers = []MCPServerConfig{{Name: "traction", Transport: "sse"}}
			},
			"mcp_servers[0].url",
		},
		{
			"bad mcp transport",
			func(c *Config) {
				c.Platform.MCPServers = []MCPServerConfig{{Name: "traction", URL: "http://x", Transport: "grpc"}}
			},
			"transport",
		},
		{
			"postgres without dsn",
			func(c *Config) { c.Storage.Type = "postgres" },
			"storage.postgres.dsn",
		},
		{
			"unknown storage",
			func(c *Config) { c.Storage.Type = "redis" },
			"storage.type",
		},
		{
			"apikey without keys",
			func(c *Config) { c.Auth.Type = "apikey" },
			"auth.api_keys",
		},
		{
			"jwt without secret",
			func(c *Config) { c.Auth.Type = "jwt" },
			"auth.jwt.secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
