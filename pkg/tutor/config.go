package tutor

import "github.com/nexmath/nexmath/pkg/api"

// DefaultMaxMessages is the history length kept per session.
const DefaultMaxMessages = 40

// Config holds configuration for the tutoring engine.
type Config struct {
	// Model overrides the provider's default model when set.
	Model string

	// MaxTokens caps the reply length. Zero leaves it to the provider.
	MaxTokens int

	// MaxMessages bounds the stored history. Zero or negative means
	// DefaultMaxMessages.
	MaxMessages int

	// Validation holds request limits. The zero value means
	// api.DefaultValidationConfig.
	Validation api.ValidationConfig
}

func (c Config) maxMessages() int {
	if c.MaxMessages <= 0 {
		return DefaultMaxMessages
	}
	return c.MaxMessages
}

func (c Config) validation() api.ValidationConfig {
	if c.Validation == (api.ValidationConfig{}) {
		return api.DefaultValidationConfig()
	}
	return c.Validation
}
