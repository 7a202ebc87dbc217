package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Engine.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("engine.max_retries must be >= 0, got %d", c.Engine.MaxRetries))
	}
	if c.Engine.MaxActiveSessions < 0 {
		errs = append(errs, fmt.Errorf("engine.max_active_sessions must be >= 0, got %d", c.Engine.MaxActiveSessions))
	}

	switch c.Oracle.Type {
	case "openai":
		if c.Oracle.BackendURL == "" {
			errs = append(errs, fmt.Errorf("oracle.backend_url is required when oracle.type is \"openai\""))
		}
		if c.Oracle.Model == "" {
			errs = append(errs, fmt.Errorf("oracle.model is required when oracle.type is \"openai\""))
		}
	case "scripted":
		// valid, used by tests and demos
	default:
		errs = append(errs, fmt.Errorf("oracle.type must be \"openai\" or \"scripted\", got %q", c.Oracle.Type))
	}

	// Capabilities reach the platform over its admin API or via MCP
	// servers; at least one route must be configured.
	if c.Platform.BaseURL == "" && len(c.Platform.MCPServers) == 0 {
		errs = append(errs, fmt.Errorf("platform.base_url or platform.mcp_servers is required"))
	}
	for i, s := range c.Platform.MCPServers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("platform.mcp_servers[%d].name is required", i))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("platform.mcp_servers[%d].url is required", i))
		}
		switch s.Transport {
		case "sse", "streamable-http":
			// valid
		default:
			errs = append(errs, fmt.Errorf("platform.mcp_servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, s.Transport))
		}
	}

	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Auth.Type {
	case "none":
		// valid
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			errs = append(errs, fmt.Errorf("auth.api_keys is required when auth.type is \"apikey\""))
		}
	case "jwt":
		if c.Auth.JWT.Secret == "" && c.Auth.JWT.SecretFile == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.secret or auth.jwt.secret_file is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	return errors.Join(errs...)
}
