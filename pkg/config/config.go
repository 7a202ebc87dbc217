// Package config provides unified configuration for the ausweis daemon.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (AUSWEIS_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the ausweis daemon.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Oracle        OracleConfig        `yaml:"oracle"`
	Platform      PlatformConfig      `yaml:"platform"`
	Capabilities  CapabilitiesConfig  `yaml:"capabilities"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// EngineConfig holds orchestration loop settings.
type EngineConfig struct {
	MaxRetries        int           `yaml:"max_retries"`         // default: 3
	ProposalTimeout   time.Duration `yaml:"proposal_timeout"`    // default: 30s
	InvokeTimeout     time.Duration `yaml:"invoke_timeout"`      // default: 10s
	MaxActiveSessions int           `yaml:"max_active_sessions"` // 0 = unlimited
}

// OracleConfig holds reasoning collaborator settings.
type OracleConfig struct {
	Type       string        `yaml:"type"`         // "openai" or "scripted", default: "openai"
	BackendURL string        `yaml:"backend_url"`  // required for type=openai
	APIKey     string        `yaml:"api_key"`      // optional
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Model      string        `yaml:"model"`        // required for type=openai
	Timeout    time.Duration `yaml:"timeout"`      // default: 120s
}

// PlatformConfig holds identity platform connection settings.
type PlatformConfig struct {
	BaseURL      string            `yaml:"base_url"` // required unless only MCP servers are used
	TenantID     string            `yaml:"tenant_id"`
	APIKey       string            `yaml:"api_key"`
	APIKeyFile   string            `yaml:"api_key_file"` // _file variant for api_key
	Timeout      time.Duration     `yaml:"timeout"`      // default: 10s
	MCPServers   []MCPServerConfig `yaml:"mcp_servers"`
}

// MCPServerConfig describes a single MCP server exposing capabilities.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "sse" or "streamable-http"
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
}

// CapabilitiesConfig holds capability description settings.
type CapabilitiesConfig struct {
	DescriptionFile string `yaml:"description_file"` // empty = built-in Traction description
}

// StorageConfig holds state management settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"` // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig holds control surface authentication settings.
type AuthConfig struct {
	Type    string         `yaml:"type"`     // "none", "apikey", or "jwt", default: "none"
	APIKeys []APIKeyConfig `yaml:"api_keys"` // entries for type=apikey
	JWT     JWTConfig      `yaml:"jwt"`      // settings for type=jwt
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key      string `yaml:"key"`
	KeyFile  string `yaml:"key_file"` // _file variant for key
	Subject  string `yaml:"subject"`
	TenantID string `yaml:"tenant_id"`
}

// JWTConfig holds token verification settings for type=jwt.
type JWTConfig struct {
	Secret     string `yaml:"secret"`
	SecretFile string `yaml:"secret_file"` // _file variant for secret
	Issuer     string `yaml:"issuer"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Engine: EngineConfig{
			MaxRetries:      3,
			ProposalTimeout: 30 * time.Second,
			InvokeTimeout:   10 * time.Second,
		},
		Oracle: OracleConfig{
			Type:    "openai",
			Timeout: 120 * time.Second,
		},
		Platform: PlatformConfig{
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
