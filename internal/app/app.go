// Package app wires the application together: configuration, database,
// Genkit, the knowledge store, and the turn engine.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagehq/sage/internal/config"
	"github.com/sagehq/sage/internal/knowledge"
	"github.com/sagehq/sage/internal/thread"
	"github.com/sagehq/sage/internal/turn"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Threads   *thread.Store
	Knowledge *knowledge.Store
	Engine    *turn.Engine

	dbCleanup func()
}

// Close releases all resources held by the application.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}
	if a.dbCleanup != nil {
		a.dbCleanup()
	}
	return nil
}
