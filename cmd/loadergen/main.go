package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"tidb-loadergen/internal/config"
	"tidb-loadergen/internal/genapp"
	"tidb-loadergen/internal/planner"

	"github.com/spf13/pflag"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

const usage = `usage:
  loadergen [generate] [flags]   generate loaders from a database or schema file
  loadergen explain [flags]      print the query planned for a batch of keys
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("loadergen failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "explain":
			return runExplain(args[1:], stdout)
		case "generate":
			args = args[1:]
		case "help":
			fmt.Fprint(stdout, usage)
			return nil
		}
	}
	return runGenerate(args, stdout)
}

func runGenerate(args []string, stdout io.Writer) error {
	fs := config.NewFlagSet("loadergen")
	fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Fprintf(stdout, "loadergen %s (%s)\n", Version, Commit)
		return nil
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger, loggerProvider, err := genapp.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := genapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)
	defer func() {
		_ = app.Shutdown(context.Background())
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := app.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "generated %d loaders for %d tables in %s\n", result.Loaders, result.Tables, cfg.Output.Dir)
	if len(result.Skipped) > 0 {
		fmt.Fprintf(stdout, "skipped (no usable key): %s\n", strings.Join(result.Skipped, ", "))
	}
	return nil
}

func runExplain(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("explain", pflag.ContinueOnError)
	table := fs.String("table", "t", "Table name")
	columns := fs.StringSlice("columns", nil, "Key columns in key order")
	selectCols := fs.StringSlice("select", nil, "Columns to select (default *)")
	keys := fs.StringArray("key", nil, "Key tuple as comma-separated values; repeat for a batch")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if len(*columns) == 0 {
		return fmt.Errorf("--columns is required")
	}

	tuples, err := parseKeys(*keys, len(*columns))
	if err != nil {
		return err
	}

	plan, query, err := planner.PlanLookup(*table, *selectCols, *columns, tuples)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "plan: %s\n", plan.Kind)
	if query.IsEmpty() {
		fmt.Fprintln(stdout, "no query is issued")
		return nil
	}
	fmt.Fprintf(stdout, "keys: %d\n", plan.KeyCount())
	fmt.Fprintf(stdout, "sql:  %s\n", query.SQL)
	fmt.Fprintf(stdout, "args: %s\n", planner.TupleKey(query.Args))
	return nil
}

// parseKeys splits each raw tuple on commas. Integers become int64, "null"
// becomes nil and anything else is a string; single or double quotes force
// a string.
func parseKeys(raw []string, width int) ([][]any, error) {
	tuples := make([][]any, 0, len(raw))
	for i, tuple := range raw {
		parts := strings.Split(tuple, ",")
		if len(parts) != width {
			return nil, fmt.Errorf("key %d has %d values, expected %d", i+1, len(parts), width)
		}
		values := make([]any, len(parts))
		for j, part := range parts {
			values[j] = parseKeyValue(strings.TrimSpace(part))
		}
		tuples = append(tuples, values)
	}
	return tuples, nil
}

func parseKeyValue(s string) any {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if strings.EqualFold(s, "null") {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
