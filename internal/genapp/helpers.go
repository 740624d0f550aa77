package genapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"tidb-loadergen/internal/config"
	"tidb-loadergen/internal/logging"
	"tidb-loadergen/internal/observability"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	initialRetryInterval = 500 * time.Millisecond
	maxRetryInterval     = 5 * time.Second
)

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider that backs it.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(context.Background(), observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     exporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func exporterConfig(otlp config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          otlp.Endpoint,
		Protocol:          otlp.Protocol,
		Insecure:          otlp.Insecure,
		TLSCertFile:       otlp.TLSCertFile,
		TLSClientCertFile: otlp.TLSClientCertFile,
		TLSClientKeyFile:  otlp.TLSClientKeyFile,
		Headers:           otlp.Headers,
		Timeout:           otlp.Timeout,
		Compression:       otlp.Compression,
		RetryEnabled:      otlp.RetryEnabled,
		RetryMaxAttempts:  otlp.RetryMaxAttempts,
	}
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	return observability.InitTracerProvider(ctx, observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       exporterConfig(tracesConfig),
	})
}

// connectDB opens the introspection connection. Statements are traced through
// otelsql when tracing is enabled.
func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.Observability.TracingEnabled {
		db, err = otelsql.Open("mysql", dsn,
			otelsql.WithAttributes(semconv.DBSystemMySQL),
			otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		)
		logger.Debug("database tracing enabled")
	} else {
		db, err = sql.Open("mysql", dsn)
	}
	if err != nil {
		return nil, err
	}

	// Introspection runs its queries one after another.
	db.SetMaxOpenConns(1)
	return db, nil
}

// waitForDatabase pings until the database answers or ctx ends, backing off
// between attempts.
func waitForDatabase(ctx context.Context, logger *logging.Logger, db *sql.DB) error {
	interval := initialRetryInterval
	attempt := 0
	for {
		attempt++
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("database not available: %w", err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("database not available: %w", err)
		case <-time.After(interval):
		}
		interval = min(interval*2, maxRetryInterval)
	}
}
