package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagehq/sage/db"
	"github.com/sagehq/sage/internal/config"
	"github.com/sagehq/sage/internal/knowledge"
	"github.com/sagehq/sage/internal/thread"
	"github.com/sagehq/sage/internal/tools"
	"github.com/sagehq/sage/internal/turn"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, dbCleanup, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.dbCleanup = dbCleanup
	a.DBPool = pool

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Embedder = embedder

	a.Threads, err = thread.NewStore(pool, logger)
	if err != nil {
		return nil, fmt.Errorf("creating thread store: %w", err)
	}

	a.Knowledge, err = knowledge.NewStore(pool, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}

	engineTools, err := provideTools(g, a.Knowledge, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Engine, err = turn.New(turn.Config{
		Genkit:        g,
		Store:         a.Threads,
		Logger:        logger,
		Tools:         engineTools,
		ModelName:     cfg.ModelName,
		HistoryWindow: cfg.HistoryWindow,
		MaxModelCalls: cfg.MaxModelCalls,
		TurnTimeout:   time.Duration(cfg.TurnTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating turn engine: %w", err)
	}

	return a, nil
}

// provideDBPool runs migrations and creates a PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}

// provideGenkit initializes Genkit with the configured AI provider and
// returns the instance together with the provider's embedder.
// Supports googleai (default) and ollama.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)

		embedder := ollama.Embedder(g, cfg.OllamaHost)
		if embedder == nil {
			return nil, nil, fmt.Errorf("embedder %q not found for ollama provider", cfg.EmbedderModel)
		}
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)
		return g, embedder, nil

	default: // googleai
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with googleai provider")
		}
		embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		if embedder == nil {
			return nil, nil, fmt.Errorf("embedder %q not found for googleai provider", cfg.EmbedderModel)
		}
		logger.Info("initialized Genkit with googleai provider", "model", cfg.ModelName)
		return g, embedder, nil
	}
}

// provideTools registers the model-facing tools with Genkit.
func provideTools(g *genkit.Genkit, store *knowledge.Store, cfg *config.Config, logger *slog.Logger) ([]ai.Tool, error) {
	lk, err := tools.NewLookup(store, cfg.RetrievalTopK, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge lookup: %w", err)
	}
	tool, err := tools.RegisterLookup(g, lk)
	if err != nil {
		return nil, fmt.Errorf("registering knowledge lookup: %w", err)
	}
	return []ai.Tool{tool}, nil
}
