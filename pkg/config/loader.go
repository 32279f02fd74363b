package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nexmath/nexmath/pkg/debug"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, NEXMATH_CONFIG env, ./config.yaml, /etc/nexmath/config.yaml)
//  3. Legacy environment variables, then NEXMATH_* overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

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
// 2. NEXMATH_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/nexmath/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("NEXMATH_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/nexmath/config.yaml",
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

// applyEnvOverrides maps environment variables to config fields. The
// variables of the original deployment (ANTHROPIC_API_KEY, CLAUDE_MODEL) are
// applied first so that NEXMATH_* values win when both are set.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("CLAUDE_MODEL"); v != "" {
		cfg.Provider.Model = v
	}

	strs := map[string]*string{
		"NEXMATH_PROVIDER":          &cfg.Provider.Name,
		"NEXMATH_BACKEND_URL":       &cfg.Provider.BackendURL,
		"NEXMATH_API_KEY":           &cfg.Provider.APIKey,
		"NEXMATH_MODEL":             &cfg.Provider.Model,
		"NEXMATH_STORAGE":           &cfg.Storage.Type,
		"NEXMATH_POSTGRES_DSN":      &cfg.Storage.Postgres.DSN,
		"NEXMATH_REDIS_URL":         &cfg.Storage.Redis.URL,
		"NEXMATH_PYTHON":            &cfg.Plot.Python,
		"NEXMATH_PLOT_EXECUTOR":     &cfg.Plot.Executor,
		"NEXMATH_SANDBOX_URL":       &cfg.Plot.Remote.SandboxURL,
		"NEXMATH_SANDBOX_TEMPLATE":  &cfg.Plot.Remote.SandboxTemplate,
		"NEXMATH_SANDBOX_NAMESPACE": &cfg.Plot.Remote.SandboxNamespace,
		"NEXMATH_AUTH_TYPE":         &cfg.Auth.Type,
		"NEXMATH_JWT_ISSUER":        &cfg.Auth.JWT.Issuer,
		"NEXMATH_JWT_AUDIENCE":      &cfg.Auth.JWT.Audience,
		"NEXMATH_JWT_JWKS_URL":      &cfg.Auth.JWT.JWKSURL,
	}
	for name, field := range strs {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"NEXMATH_PORT":           &cfg.Server.Port,
		"NEXMATH_MAX_TOKENS":     &cfg.Provider.MaxTokens,
		"NEXMATH_MAX_MESSAGES":   &cfg.Conversation.MaxMessages,
		"NEXMATH_STORAGE_SIZE":   &cfg.Storage.MaxSize,
		"NEXMATH_MAX_CONCURRENT": &cfg.Plot.MaxConcurrent,
		"NEXMATH_RATE_LIMIT_RPM": &cfg.Auth.RateLimit.RequestsPerMinute,
	}
	for name, field := range ints {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = n
	}

	if v := os.Getenv("NEXMATH_STRICT_SANITIZE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NEXMATH_STRICT_SANITIZE: %w", err)
		}
		cfg.Plot.StrictSanitize = b
	}

	if v := os.Getenv("NEXMATH_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	// NEXMATH_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("NEXMATH_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"provider.api_key_file", cfg.Provider.APIKeyFile, &cfg.Provider.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"storage.redis.url_file", cfg.Storage.Redis.URLFile, &cfg.Storage.Redis.URL},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}

	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
