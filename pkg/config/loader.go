package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, AUSWEIS_CONFIG env, ./config.yaml, /etc/ausweis/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. AUSWEIS_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/ausweis/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("AUSWEIS_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/ausweis/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps AUSWEIS_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUSWEIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AUSWEIS_ORACLE_URL"); v != "" {
		cfg.Oracle.BackendURL = v
	}
	if v := os.Getenv("AUSWEIS_ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("AUSWEIS_ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("AUSWEIS_PLATFORM_URL"); v != "" {
		cfg.Platform.BaseURL = v
	}
	if v := os.Getenv("AUSWEIS_PLATFORM_TENANT_ID"); v != "" {
		cfg.Platform.TenantID = v
	}
	if v := os.Getenv("AUSWEIS_PLATFORM_API_KEY"); v != "" {
		cfg.Platform.APIKey = v
	}
	if v := os.Getenv("AUSWEIS_CAPABILITIES_FILE"); v != "" {
		cfg.Capabilities.DescriptionFile = v
	}
	if v := os.Getenv("AUSWEIS_STORAGE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("AUSWEIS_STORAGE_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxSize = size
		}
	}
	if v := os.Getenv("AUSWEIS_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}

	// AUSWEIS_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("AUSWEIS_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	// AUSWEIS_MCP_SERVERS: JSON array of MCP server configs.
	if v := os.Getenv("AUSWEIS_MCP_SERVERS"); v != "" {
		var servers []MCPServerConfig
		if err := json.Unmarshal([]byte(v), &servers); err == nil && len(servers) > 0 {
			cfg.Platform.MCPServers = servers
		}
	}
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields. The file wins only when the value field is empty.
func resolveFileReferences(cfg *Config) error {
	if cfg.Oracle.APIKeyFile != "" && cfg.Oracle.APIKey == "" {
		val, err := readSecretFile(cfg.Oracle.APIKeyFile)
		if err != nil {
			return fmt.Errorf("oracle.api_key_file: %w", err)
		}
		cfg.Oracle.APIKey = val
	}

	if cfg.Platform.APIKeyFile != "" && cfg.Platform.APIKey == "" {
		val, err := readSecretFile(cfg.Platform.APIKeyFile)
		if err != nil {
			return fmt.Errorf("platform.api_key_file: %w", err)
		}
		cfg.Platform.APIKey = val
	}

	if cfg.Storage.Postgres.DSNFile != "" && cfg.Storage.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Storage.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = val
	}

	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}

	if cfg.Auth.JWT.SecretFile != "" && cfg.Auth.JWT.Secret == "" {
		val, err := readSecretFile(cfg.Auth.JWT.SecretFile)
		if err != nil {
			return fmt.Errorf("auth.jwt.secret_file: %w", err)
		}
		cfg.Auth.JWT.Secret = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding
// whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
