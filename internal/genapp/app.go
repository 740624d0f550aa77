// Package genapp runs one generation pass: it reads the schema from a database
// or a schema file, derives loader groups, and writes the generated package.
package genapp

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"tidb-loadergen/internal/config"
	"tidb-loadergen/internal/logging"
	"tidb-loadergen/internal/observability"
)

// App owns the resources of a generation run.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	effectiveDatabase string
	databaseSource    string
	dsnPresent        bool

	// openDB is swapped in tests.
	openDB func(cfg *config.Config, logger *logging.Logger) (*sql.DB, error)

	cleanup cleanupStack

	stateMu      sync.Mutex
	shutdownOnce sync.Once
}

// Result summarizes a generation run.
type Result struct {
	Schema string
	// Tables counts tables that received loaders.
	Tables  int
	Loaders int
	// Skipped lists tables without a usable key.
	Skipped []string
	Files   []string
}

// New creates an App. The effective database is resolved up front unless the
// schema comes from a file.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	app := &App{
		cfg:    cfg,
		logger: logger,
		openDB: connectDB,
	}
	if usesSchemaFile(cfg) {
		return app, nil
	}

	effectiveDatabase, databaseSource, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}
	app.effectiveDatabase = effectiveDatabase
	app.databaseSource = databaseSource
	app.dsnPresent = strings.TrimSpace(cfg.Database.ConnectionString) != ""
	return app, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
	if provider != nil {
		a.cleanup.push("logger provider", func(ctx context.Context) error {
			return provider.Shutdown(ctx, a.logger.Logger)
		})
	}
}

func usesSchemaFile(cfg *config.Config) bool {
	return strings.TrimSpace(cfg.Source.SchemaFile) != ""
}
