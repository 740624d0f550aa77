// Package analyzer classifies the lookup keys a table offers: its primary key
// and every index that can drive a batched lookup.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"tidb-loadergen/internal/introspection"
)

// Shape describes the cardinality and arity of a lookup key.
type Shape int

const (
	// SingleUnique is a one-column key that yields at most one row.
	SingleUnique Shape = iota + 1
	// SingleMany is a one-column key that may yield several rows.
	SingleMany
	// CompositeUnique is a multi-column key that yields at most one row.
	CompositeUnique
	// CompositeMany is a multi-column key that may yield several rows.
	CompositeMany
)

func (s Shape) String() string {
	switch s {
	case SingleUnique:
		return "single_unique"
	case SingleMany:
		return "single_many"
	case CompositeUnique:
		return "composite_unique"
	case CompositeMany:
		return "composite_many"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// IsUnique reports whether the shape yields at most one row per key.
func (s Shape) IsUnique() bool {
	switch s {
	case SingleUnique, CompositeUnique:
		return true
	case SingleMany, CompositeMany:
		return false
	default:
		panic(fmt.Sprintf("analyzer: unknown shape %d", int(s)))
	}
}

// IsComposite reports whether the shape spans more than one column.
func (s Shape) IsComposite() bool {
	switch s {
	case CompositeUnique, CompositeMany:
		return true
	case SingleUnique, SingleMany:
		return false
	default:
		panic(fmt.Sprintf("analyzer: unknown shape %d", int(s)))
	}
}

// ShapeFor picks the shape of a key with the given column count and uniqueness.
func ShapeFor(columns int, unique bool) Shape {
	switch {
	case columns == 1 && unique:
		return SingleUnique
	case columns == 1:
		return SingleMany
	case unique:
		return CompositeUnique
	default:
		return CompositeMany
	}
}

// Key is a resolved lookup key: its columns in key order and its shape.
type Key struct {
	Name    string
	Columns []introspection.Column
	Unique  bool
	Shape   Shape
}

// ColumnNames returns the key's column names in key order.
func (k Key) ColumnNames() []string {
	names := make([]string, len(k.Columns))
	for i, col := range k.Columns {
		names[i] = col.Name
	}
	return names
}

// AnalyzedTable is a table together with the lookup keys it supports.
type AnalyzedTable struct {
	Name   string
	Schema string
	Table  introspection.Table
	// PrimaryKey is nil when the table has no usable primary key.
	PrimaryKey *Key
	// Indexes lists eligible indexes in the order the introspector reported them.
	Indexes []Key
}

// Options tune analysis.
type Options struct {
	// Logger receives debug records for skipped indexes. Nil disables them.
	Logger *slog.Logger
}

// Analyze resolves the primary key and eligible indexes of a table.
// It never fails: ineligible keys are left out of the result.
func Analyze(table introspection.Table, schema string) AnalyzedTable {
	return AnalyzeWithOptions(table, schema, Options{})
}

// AnalyzeWithOptions is Analyze with skip reporting.
func AnalyzeWithOptions(table introspection.Table, schema string, opts Options) AnalyzedTable {
	result := AnalyzedTable{
		Name:       table.Name,
		Schema:     schema,
		Table:      table,
		PrimaryKey: resolvePrimaryKey(table),
	}

	for _, idx := range table.Indexes {
		key, reason := resolveIndex(table, idx)
		if reason != "" {
			debugSkip(opts.Logger, table.Name, idx.Name, reason)
			continue
		}
		result.Indexes = append(result.Indexes, key)
	}
	return result
}

// AnalyzeSchema analyzes every table of a schema, preserving table order.
func AnalyzeSchema(schema *introspection.Schema, opts Options) []AnalyzedTable {
	if schema == nil {
		return nil
	}
	tables := make([]AnalyzedTable, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		tables = append(tables, AnalyzeWithOptions(table, schema.Name, opts))
	}
	return tables
}

func resolvePrimaryKey(table introspection.Table) *Key {
	if col := introspection.PrimaryKeyColumn(table); col != nil {
		return &Key{
			Name:    "PRIMARY",
			Columns: []introspection.Column{*col},
			Unique:  true,
			Shape:   SingleUnique,
		}
	}

	cols, ok := introspection.DeclaredPrimaryKeyColumns(table)
	if !ok {
		return nil
	}
	return &Key{
		Name:    "PRIMARY",
		Columns: cols,
		Unique:  true,
		Shape:   ShapeFor(len(cols), true),
	}
}

// resolveIndex maps an index onto table columns. A non-empty reason means the
// index cannot drive a lookup.
func resolveIndex(table introspection.Table, idx introspection.Index) (Key, string) {
	if idx.Condition != "" {
		return Key{}, "partial index"
	}
	if len(idx.Columns) == 0 {
		return Key{}, "no key columns"
	}

	cols := make([]introspection.Column, 0, len(idx.Columns))
	for _, name := range idx.Columns {
		if name == "" {
			return Key{}, "expression key part"
		}
		col, ok := introspection.ColumnByName(table, name)
		if !ok {
			return Key{}, fmt.Sprintf("unknown column %q", name)
		}
		cols = append(cols, col)
	}

	return Key{
		Name:    idx.Name,
		Columns: cols,
		Unique:  idx.Unique,
		Shape:   ShapeFor(len(cols), idx.Unique),
	}, ""
}

func debugSkip(logger *slog.Logger, table, index, reason string) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelDebug, "skipping index",
		slog.String("table", table),
		slog.String("index", index),
		slog.String("reason", reason),
	)
}
