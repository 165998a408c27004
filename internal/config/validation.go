package config

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration validation, checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidMaxModelCalls indicates the per-turn model-call cap is out of range.
	ErrInvalidMaxModelCalls = errors.New("invalid max model calls")

	// ErrInvalidTurnTimeout indicates the turn timeout is out of range.
	ErrInvalidTurnTimeout = errors.New("invalid turn timeout")

	// ErrInvalidRetrievalTopK indicates the retrieval top-K is out of range.
	ErrInvalidRetrievalTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrMissingAuthSecret indicates the auth secret is not set.
	ErrMissingAuthSecret = errors.New("missing auth secret")

	// ErrInvalidAuthSecret indicates the auth secret is too short.
	ErrInvalidAuthSecret = errors.New("invalid auth secret")
)

// Validation bounds.
const (
	// MinHistoryWindow is the smallest usable history window: one exchange.
	MinHistoryWindow = 2

	// MaxHistoryWindow bounds the window to keep model input small.
	MaxHistoryWindow = 100

	// MaxModelCallsCeiling bounds the per-turn model-call cap.
	MaxModelCallsCeiling = 10

	// MinTurnTimeoutSeconds and MaxTurnTimeoutSeconds bound the turn deadline.
	MinTurnTimeoutSeconds = 5
	MaxTurnTimeoutSeconds = 300

	// MaxRetrievalTopK bounds the passage count per lookup.
	MaxRetrievalTopK = 10

	// MinAuthSecretLength is the minimum HMAC key length in bytes.
	MinAuthSecretLength = 32
)

// Validate checks configuration values common to all commands.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGoogleAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (supported: googleai, ollama)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.HistoryWindow < MinHistoryWindow || c.HistoryWindow > MaxHistoryWindow {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidHistoryWindow,
			c.HistoryWindow, MinHistoryWindow, MaxHistoryWindow)
	}
	if c.MaxModelCalls < 1 || c.MaxModelCalls > MaxModelCallsCeiling {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidMaxModelCalls,
			c.MaxModelCalls, MaxModelCallsCeiling)
	}
	if c.TurnTimeoutSeconds < MinTurnTimeoutSeconds || c.TurnTimeoutSeconds > MaxTurnTimeoutSeconds {
		return fmt.Errorf("%w: %d (must be %d-%d seconds)", ErrInvalidTurnTimeout,
			c.TurnTimeoutSeconds, MinTurnTimeoutSeconds, MaxTurnTimeoutSeconds)
	}
	if c.RetrievalTopK < 1 || c.RetrievalTopK > MaxRetrievalTopK {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidRetrievalTopK,
			c.RetrievalTopK, MaxRetrievalTopK)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}

	return nil
}

// ValidateServe checks configuration required by the HTTP server, on top of
// the common validation. The auth secret is only required when serving because
// offline commands (index, version) never verify identity tokens.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("%w: set auth_secret or SAGE_AUTH_SECRET", ErrMissingAuthSecret)
	}
	if len(c.AuthSecret) < MinAuthSecretLength {
		return fmt.Errorf("%w: must be at least %d bytes, got %d",
			ErrInvalidAuthSecret, MinAuthSecretLength, len(c.AuthSecret))
	}
	return nil
}
