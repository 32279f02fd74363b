// Package config provides unified configuration for the NexMath server.
//
// Configuration is loaded in layers:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (NEXMATH_ prefix)
//  4. Legacy variables (ANTHROPIC_API_KEY, CLAUDE_MODEL)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the NexMath server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Provider      ProviderConfig      `yaml:"provider"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Storage       StorageConfig       `yaml:"storage"`
	Plot          PlotConfig          `yaml:"plot"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 0 (streams)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 32 MiB
	CORSOrigins     []string      `yaml:"cors_origins"`     // default: ["*"]
}

// ProviderConfig holds the chat completion backend settings.
type ProviderConfig struct {
	Name       string        `yaml:"name"`         // label in logs and metrics
	BackendURL string        `yaml:"backend_url"`  // default: https://api.anthropic.com
	APIKey     string        `yaml:"api_key"`      // optional for local backends
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Model      string        `yaml:"model"`        // default: claude-sonnet-4-20250514
	MaxTokens  int           `yaml:"max_tokens"`   // default: 4096
	Timeout    time.Duration `yaml:"timeout"`      // default: 120s
	MaxRetries int           `yaml:"max_retries"`  // default: 2
}

// ConversationConfig holds history settings.
type ConversationConfig struct {
	MaxMessages int `yaml:"max_messages"` // default: 40
}

// StorageConfig holds session storage settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "memory", "postgres" or "redis", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false

	// IdleTTL removes sessions not accessed for this long. Zero keeps them.
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	URL       string        `yaml:"url"`
	URLFile   string        `yaml:"url_file"`   // _file variant for url
	KeyPrefix string        `yaml:"key_prefix"` // default: "nexmath:session:"
	TTL       time.Duration `yaml:"ttl"`        // default: 24h
}

// PlotConfig holds plot pipeline settings.
type PlotConfig struct {
	Executor       string           `yaml:"executor"`        // "local" or "remote", default: "local"
	Python         string           `yaml:"python"`          // interpreter tried first
	ProbeTimeout   time.Duration    `yaml:"probe_timeout"`   // default: 5s
	ExecTimeout    time.Duration    `yaml:"exec_timeout"`    // default: 15s
	MaxConcurrent  int              `yaml:"max_concurrent"`  // default: 4
	StrictSanitize bool             `yaml:"strict_sanitize"` // default: true
	Remote         RemotePlotConfig `yaml:"remote"`
}

// RemotePlotConfig selects the sandbox used by the remote executor. Either a
// fixed SandboxURL or a SandboxTemplate for per-execution Kubernetes claims.
type RemotePlotConfig struct {
	SandboxURL       string        `yaml:"sandbox_url"`
	SandboxTemplate  string        `yaml:"sandbox_template"`
	SandboxNamespace string        `yaml:"sandbox_namespace"` // default: "default"
	ClaimTimeout     time.Duration `yaml:"claim_timeout"`     // default: 60s
	MaxRetries       int           `yaml:"max_retries"`       // default: 2
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key      string `yaml:"key" json:"key"`
	KeyFile  string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject  string `yaml:"subject" json:"subject"`
	TenantID string `yaml:"tenant_id" json:"tenant_id"`
	Tier     string `yaml:"tier" json:"tier"`
}

// JWTConfig holds bearer token validation settings.
type JWTConfig struct {
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	JWKSURL  string        `yaml:"jwks_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"` // default: 1h
}

// RateLimitConfig holds per-subject request limits. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute int                   `yaml:"requests_per_minute"`
	Tiers             map[string]TierConfig `yaml:"tiers"`
}

// TierConfig overrides the limit for one tier.
type TierConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// LoggingConfig holds log level and debug category settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // TRACE, DEBUG, INFO, WARN, ERROR; default: INFO
	Debug string `yaml:"debug"` // comma separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     32 << 20,
			CORSOrigins:     []string{"*"},
		},
		Provider: ProviderConfig{
			Name:       "anthropic",
			BackendURL: "https://api.anthropic.com",
			Model:      "claude-sonnet-4-20250514",
			MaxTokens:  4096,
			Timeout:    120 * time.Second,
			MaxRetries: 2,
		},
		Conversation: ConversationConfig{
			MaxMessages: 40,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
			Redis: RedisConfig{
				KeyPrefix: "nexmath:session:",
				TTL:       24 * time.Hour,
			},
		},
		Plot: PlotConfig{
			Executor:       "local",
			ProbeTimeout:   5 * time.Second,
			ExecTimeout:    15 * time.Second,
			MaxConcurrent:  4,
			StrictSanitize: true,
			Remote: RemotePlotConfig{
				SandboxNamespace: "default",
				ClaimTimeout:     60 * time.Second,
				MaxRetries:       2,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			JWT: JWTConfig{
				CacheTTL: time.Hour,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}
