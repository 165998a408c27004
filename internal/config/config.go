// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (SAGE_* prefix, runtime override)
//  2. Config file (~/.sage/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, model selection, embedder
//   - Turn engine: history window, model-call cap, turn timeout
//   - Retrieval: top-K passage count
//   - Storage: PostgreSQL connection (see storage.go)
//   - Auth: HMAC secret for signed identity tokens
//
// Security: sensitive data (passwords, secrets) are never logged.
// Validation: range checks in validation.go with sentinel errors for errors.Is().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGoogleAI = "googleai"
	ProviderOllama   = "ollama"
)

// Turn engine defaults.
const (
	// DefaultHistoryWindow is the number of recent messages sent to the model.
	DefaultHistoryWindow = 6

	// DefaultMaxModelCalls caps model invocations within a single turn.
	DefaultMaxModelCalls = 4

	// DefaultTurnTimeoutSeconds bounds one full turn end to end.
	DefaultTurnTimeoutSeconds = 45

	// DefaultRetrievalTopK is the passage count returned by knowledge_lookup.
	DefaultRetrievalTopK = 4
)

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string `mapstructure:"provider"`       // "googleai" (default) or "ollama"
	ModelName     string `mapstructure:"model_name"`     // Provider-qualified model (e.g., "googleai/gemini-2.5-flash")
	EmbedderModel string `mapstructure:"embedder_model"` // Embedding model for the knowledge base
	OllamaHost    string `mapstructure:"ollama_host"`    // Ollama server address (ollama provider only)

	// Turn engine
	HistoryWindow      int `mapstructure:"history_window"`       // Recent messages sent to the model
	MaxModelCalls      int `mapstructure:"max_model_calls"`      // Model invocations per turn before aborting
	TurnTimeoutSeconds int `mapstructure:"turn_timeout_seconds"` // Whole-turn deadline

	// Retrieval
	RetrievalTopK int `mapstructure:"retrieval_top_k"` // Passages returned per knowledge lookup

	// HTTP server
	ServerAddr string `mapstructure:"server_addr"`

	// Auth
	AuthSecret string `mapstructure:"auth_secret"` // HMAC key for signed identity tokens

	// PostgreSQL connection (see storage.go for DSN builders)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Logging
	LogLevel string `mapstructure:"log_level"` // "debug", "info", "warn", "error"
	LogJSON  bool   `mapstructure:"log_json"`
}

// Load reads configuration from defaults, config file, and environment.
// Missing config file is not an error; defaults and env vars still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")

	v.SetEnvPrefix("SAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* values.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values for all configuration keys.
// Registering every key also makes it visible to AutomaticEnv.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderGoogleAI)
	v.SetDefault("model_name", "googleai/gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("history_window", DefaultHistoryWindow)
	v.SetDefault("max_model_calls", DefaultMaxModelCalls)
	v.SetDefault("turn_timeout_seconds", DefaultTurnTimeoutSeconds)
	v.SetDefault("retrieval_top_k", DefaultRetrievalTopK)

	v.SetDefault("server_addr", "127.0.0.1:8000")
	v.SetDefault("auth_secret", "")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "sage")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "sage")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// configDir returns the sage configuration directory (~/.sage), creating it
// with restricted permissions if it does not exist.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".sage")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}
