package genapp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tidb-loadergen/internal/analyzer"
	"tidb-loadergen/internal/emitter"
	"tidb-loadergen/internal/introspection"
	"tidb-loadergen/internal/naming"
	"tidb-loadergen/internal/schemafilter"
)

// Run reads the schema, derives loader groups and writes the generated files.
// Tables without a usable key are reported in Result.Skipped; a run where no
// table qualifies fails with emitter.ErrNoLoaders.
func (a *App) Run(ctx context.Context) (Result, error) {
	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return Result{}, fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		a.stateMu.Lock()
		a.cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
		a.stateMu.Unlock()
	}

	ctx, span := otel.Tracer("tidb-loadergen/genapp").Start(ctx, "loadergen.generate")
	defer span.End()

	result, err := a.generate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetAttributes(
		attribute.Int("loadergen.tables", result.Tables),
		attribute.Int("loadergen.loaders", result.Loaders),
	)
	return result, nil
}

func (a *App) generate(ctx context.Context) (Result, error) {
	schema, err := a.loadSchema(ctx)
	if err != nil {
		return Result{}, err
	}

	schemafilter.Apply(schema, a.cfg.SchemaFilters)
	analyzed := analyzer.AnalyzeSchema(schema, analyzer.Options{Logger: a.logger.Logger})
	groups := analyzer.LoaderGroups(analyzed)

	result := Result{Schema: schema.Name, Tables: len(groups)}
	grouped := make(map[string]bool, len(groups))
	for _, group := range groups {
		grouped[group.Table] = true
		result.Loaders += len(group.Loaders)
	}
	for _, t := range analyzed {
		if !grouped[t.Name] {
			result.Skipped = append(result.Skipped, t.Name)
			a.logger.Warn("table has no usable key; no loaders generated", slog.String("table", t.Name))
		}
	}

	files, err := emitter.Generate(groups, emitter.Options{
		Package:       a.cfg.Output.Package,
		RuntimeImport: a.cfg.Output.RuntimeImport,
		Namer:         naming.New(a.cfg.Naming, a.logger.Logger),
		Logger:        a.logger.Logger,
	})
	if err != nil {
		return result, err
	}
	if err := emitter.WriteFiles(ctx, a.cfg.Output.Dir, files); err != nil {
		return result, err
	}

	for name := range files {
		result.Files = append(result.Files, name)
	}
	sort.Strings(result.Files)

	a.logger.Info("generated loaders",
		slog.String("schema", result.Schema),
		slog.Int("tables", result.Tables),
		slog.Int("loaders", result.Loaders),
		slog.Int("skipped_tables", len(result.Skipped)),
		slog.String("output_dir", a.cfg.Output.Dir),
	)
	return result, nil
}

func (a *App) loadSchema(ctx context.Context) (*introspection.Schema, error) {
	if usesSchemaFile(a.cfg) {
		a.logger.Info("reading schema file", slog.String("path", a.cfg.Source.SchemaFile))
		return introspection.LoadSchemaFile(a.cfg.Source.SchemaFile)
	}

	a.logger.Info("connecting to TiDB",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database_effective", a.effectiveDatabase),
		slog.String("database_source", a.databaseSource),
		slog.Bool("dsn_present", a.dsnPresent),
	)

	db, err := a.openDB(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if timeout := a.cfg.Database.ConnectionTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := waitForDatabase(ctx, a.logger, db); err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	schema, err := introspection.IntrospectDatabaseContext(ctx, db, a.effectiveDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", a.effectiveDatabase, err)
	}
	return schema, nil
}
