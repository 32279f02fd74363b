package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together, each with its field path.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodySize <= 0 {
		add("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize)
	}

	if c.Provider.BackendURL == "" {
		add("provider.backend_url is required")
	}
	if c.Provider.MaxTokens <= 0 {
		add("provider.max_tokens must be > 0, got %d", c.Provider.MaxTokens)
	}
	if c.Provider.MaxRetries < 0 {
		add("provider.max_retries must be >= 0, got %d", c.Provider.MaxRetries)
	}

	// Trimming keeps the first two messages, so fewer than three cannot
	// hold a new turn.
	if c.Conversation.MaxMessages < 3 {
		add("conversation.max_messages must be >= 3, got %d", c.Conversation.MaxMessages)
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			add("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\"")
		}
	case "redis":
		if c.Storage.Redis.URL == "" && c.Storage.Redis.URLFile == "" {
			add("storage.redis.url or storage.redis.url_file is required when storage.type is \"redis\"")
		}
	default:
		add("storage.type must be \"memory\", \"postgres\", or \"redis\", got %q", c.Storage.Type)
	}

	switch c.Plot.Executor {
	case "local":
	case "remote":
		if c.Plot.Remote.SandboxURL == "" && c.Plot.Remote.SandboxTemplate == "" {
			add("plot.remote.sandbox_url or plot.remote.sandbox_template is required when plot.executor is \"remote\"")
		}
	default:
		add("plot.executor must be \"local\" or \"remote\", got %q", c.Plot.Executor)
	}
	if c.Plot.ExecTimeout <= 0 {
		add("plot.exec_timeout must be > 0, got %v", c.Plot.ExecTimeout)
	}
	if c.Plot.ProbeTimeout <= 0 {
		add("plot.probe_timeout must be > 0, got %v", c.Plot.ProbeTimeout)
	}
	if c.Plot.MaxConcurrent <= 0 {
		add("plot.max_concurrent must be > 0, got %d", c.Plot.MaxConcurrent)
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			add("auth.api_keys must not be empty when auth.type is \"apikey\"")
		}
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			add("auth.jwt.jwks_url is required when auth.type is \"jwt\"")
		}
	default:
		add("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type)
	}
	if c.Auth.RateLimit.RequestsPerMinute < 0 {
		add("auth.rate_limit.requests_per_minute must be >= 0, got %d", c.Auth.RateLimit.RequestsPerMinute)
	}

	return errors.Join(errs...)
}
