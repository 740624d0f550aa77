// Package loader is the runtime behind generated loaders. Each loader batches
// the keys requested within a short window into one query, planned by the
// composite planner, and hands every caller the rows for its own key.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"tidb-loadergen/internal/dbexec"
	"tidb-loadergen/internal/planner"
)

// Executor runs lookup queries. *sql.DB, *sql.Conn and *sql.Tx can be adapted
// with NewExecutor.
type Executor = dbexec.QueryExecutor

// NewExecutor adapts a database handle, connection or transaction.
// Date and time key columns listed in Table.Timestamps match whether the
// driver returns time.Time (parseTime=true) or text; text is read as UTC,
// the driver's default loc.
func NewExecutor(q dbexec.Querier) Executor {
	return dbexec.NewStandardExecutor(q)
}

// Table identifies the table a loader reads and the columns it selects.
// An empty Columns list selects every column.
type Table struct {
	Name    string
	Columns []string
	// Collations maps text key columns to their collation. Keys on columns
	// whose collation ignores case or accents match rows the same way.
	Collations map[string]string
	// Timestamps lists date and time key columns.
	Timestamps []string
}

type resolveFunc[V any] func(keys []Key, rows []Row) []Result[V]

// Loader looks up rows of one table by one key.
type Loader[V any] struct {
	exec          Executor
	table         Table
	keyColumns    []string
	selectColumns []string
	resolve       resolveFunc[V]
	batcher       *Batcher[V]
	logger        *slog.Logger
	metrics       MetricsRecorder
}

// NewUnique creates a loader for a key that identifies at most one row.
// Keys without a row resolve to a *NotFound error.
func NewUnique(exec Executor, table Table, keyColumns []string, opts ...Option) *Loader[Row] {
	return newLoader(exec, table, keyColumns, func(keys []Key, rows []Row) []Result[Row] {
		return ResolveUnique(table, keyColumns, keys, rows)
	}, opts)
}

// NewMany creates a loader for a key that may match several rows.
// Keys without rows resolve to an empty slice.
func NewMany(exec Executor, table Table, keyColumns []string, opts ...Option) *Loader[[]Row] {
	return newLoader(exec, table, keyColumns, func(keys []Key, rows []Row) []Result[[]Row] {
		return ResolveMany(table, keyColumns, keys, rows)
	}, opts)
}

func newLoader[V any](exec Executor, table Table, keyColumns []string, resolve resolveFunc[V], opts []Option) *Loader[V] {
	if len(keyColumns) == 0 {
		panic(fmt.Sprintf("loader: %s loader requires key columns", table.Name))
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	l := &Loader[V]{
		exec:          exec,
		table:         table,
		keyColumns:    append([]string(nil), keyColumns...),
		selectColumns: withKeyColumns(table.Columns, keyColumns),
		resolve:       resolve,
		logger:        o.logger,
		metrics:       o.metrics,
	}
	l.batcher = NewBatcher[V](l.fetch, o.wait, o.maxBatch)
	return l
}

// withKeyColumns makes sure the select list carries every key column so rows
// can be matched back to keys.
func withKeyColumns(columns, keyColumns []string) []string {
	if len(columns) == 0 {
		return nil
	}
	out := append([]string(nil), columns...)
	for _, key := range keyColumns {
		found := false
		for _, col := range columns {
			if col == key {
				found = true
				break
			}
		}
		if !found {
			out = append(out, key)
		}
	}
	return out
}

// Table returns the table the loader reads.
func (l *Loader[V]) Table() string {
	return l.table.Name
}

// KeyColumns returns the key columns in key order.
func (l *Loader[V]) KeyColumns() []string {
	return append([]string(nil), l.keyColumns...)
}

// Load returns the result for one key, given as one value per key column.
// It panics if the number of values differs from the number of key columns.
func (l *Loader[V]) Load(ctx context.Context, values ...any) (V, error) {
	return l.LoadThunk(ctx, values...)()
}

// LoadThunk queues a key and returns a thunk for its result, so callers can
// queue several keys before waiting on any of them.
func (l *Loader[V]) LoadThunk(ctx context.Context, values ...any) Thunk[V] {
	l.checkArity(values)
	return l.batcher.Load(ctx, Key(values))
}

// LoadMany returns results aligned with keys. Keys are queued together and
// usually resolve in a single query.
func (l *Loader[V]) LoadMany(ctx context.Context, keys []Key) []Result[V] {
	thunks := make([]Thunk[V], len(keys))
	for i, key := range keys {
		l.checkArity(key)
		thunks[i] = l.batcher.Load(ctx, key)
	}
	results := make([]Result[V], len(keys))
	for i, thunk := range thunks {
		results[i].Value, results[i].Err = thunk()
	}
	return results
}

func (l *Loader[V]) checkArity(values []any) {
	if len(values) != len(l.keyColumns) {
		panic(fmt.Sprintf("loader: %s lookup by %v expects %d values, got %d",
			l.table.Name, l.keyColumns, len(l.keyColumns), len(values)))
	}
}

// fetch runs one batch: keys holding NULL are not sent to the database and
// resolve like keys without rows.
func (l *Loader[V]) fetch(ctx context.Context, keys []Key) []Result[V] {
	ctx, span := otel.Tracer("tidb-loadergen/loader").Start(ctx, "loader.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.table", l.table.Name),
		attribute.Int("loader.keys", len(keys)),
	)

	start := time.Now()
	rows, plan, err := l.query(ctx, keys)
	stats := BatchStats{
		Table:    l.table.Name,
		Plan:     plan.Kind.String(),
		Keys:     len(keys),
		Rows:     len(rows),
		Duration: time.Since(start),
		Err:      err,
	}
	span.SetAttributes(attribute.String("loader.plan", stats.Plan))
	if l.metrics != nil {
		l.metrics.RecordBatch(ctx, stats)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if l.logger != nil {
			l.logger.LogAttrs(ctx, slog.LevelWarn, "loader batch failed",
				slog.String("table", l.table.Name),
				slog.Int("keys", len(keys)),
				slog.String("error", err.Error()),
			)
		}
		results := make([]Result[V], len(keys))
		for i := range results {
			results[i].Err = err
		}
		return results
	}

	if l.logger != nil {
		l.logger.LogAttrs(ctx, slog.LevelDebug, "loader batch",
			slog.String("table", l.table.Name),
			slog.String("plan", stats.Plan),
			slog.Int("keys", len(keys)),
			slog.Int("rows", len(rows)),
			slog.Duration("duration", stats.Duration),
		)
	}
	return l.resolve(keys, rows)
}

func (l *Loader[V]) query(ctx context.Context, keys []Key) ([]Row, planner.CompositePlan, error) {
	lookup := make([][]any, 0, len(keys))
	for _, key := range keys {
		if !hasNull(key) {
			lookup = append(lookup, key)
		}
	}

	plan, query, err := planner.PlanLookup(l.table.Name, l.selectColumns, l.keyColumns, lookup)
	if err != nil {
		return nil, plan, err
	}
	if query.IsEmpty() {
		return nil, plan, nil
	}

	rs, err := l.exec.QueryContext(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, plan, fmt.Errorf("failed to query %s: %w", l.table.Name, err)
	}
	scanned, err := dbexec.ScanRows(rs, l.selectColumns)
	if err != nil {
		return nil, plan, fmt.Errorf("failed to scan %s rows: %w", l.table.Name, err)
	}

	rows := make([]Row, len(scanned))
	for i, r := range scanned {
		rows[i] = Row(r)
	}
	return rows, plan, nil
}
