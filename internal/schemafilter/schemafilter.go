// Package schemafilter applies allow/deny filters to schema snapshots before analysis.
package schemafilter

import (
	"path"
	"slices"
	"strings"

	"tidb-loadergen/internal/introspection"
)

// Config controls allow/deny filters for tables and columns.
type Config struct {
	AllowTables      []string            `mapstructure:"allow_tables"`
	DenyTables       []string            `mapstructure:"deny_tables"`
	ScanViewsEnabled bool                `mapstructure:"scan_views_enabled"`
	AllowColumns     map[string][]string `mapstructure:"allow_columns"`
	DenyColumns      map[string][]string `mapstructure:"deny_columns"`
}

// Apply filters tables, columns, and keys in place.
// Missing allow lists default to allow-all; deny rules always win.
// Keys that reference a filtered-out column are dropped with it.
func Apply(schema *introspection.Schema, cfg Config) {
	if schema == nil {
		return
	}

	finalTables := make([]introspection.Table, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		if table.IsView && !cfg.ScanViewsEnabled {
			continue
		}
		if !tableAllowed(table.Name, cfg.AllowTables, cfg.DenyTables) {
			continue
		}

		allowedColumns := make(map[string]bool)
		filteredColumns := make([]introspection.Column, 0, len(table.Columns))
		for _, column := range table.Columns {
			if !columnAllowed(table.Name, column.Name, cfg.AllowColumns, cfg.DenyColumns) {
				continue
			}
			filteredColumns = append(filteredColumns, column)
			allowedColumns[column.Name] = true
		}
		if len(filteredColumns) == 0 {
			continue
		}

		table.Columns = filteredColumns
		table.Indexes = filterIndexes(table.Indexes, allowedColumns)
		if !allAllowed(table.PrimaryKey, allowedColumns) {
			table.PrimaryKey = nil
		}
		finalTables = append(finalTables, table)
	}

	schema.Tables = finalTables
}

// TableAllowed reports whether a table name passes the table filters.
func TableAllowed(table string, cfg Config) bool {
	return tableAllowed(table, cfg.AllowTables, cfg.DenyTables)
}

func tableAllowed(table string, allow, deny []string) bool {
	if matchesAny(table, deny) {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	return matchesAny(table, allow)
}

func columnAllowed(table, column string, allow, deny map[string][]string) bool {
	denyPatterns := mergePatterns(deny, table)
	if matchesAny(column, denyPatterns) {
		return false
	}
	allowPatterns := mergePatterns(allow, table)
	if len(allowPatterns) == 0 {
		return true
	}
	return matchesAny(column, allowPatterns)
}

func mergePatterns(patterns map[string][]string, table string) []string {
	if patterns == nil {
		return nil
	}
	combined := append([]string{}, patterns["*"]...)
	combined = append(combined, patterns[table]...)
	return slices.Compact(combined)
}

// filterIndexes drops indexes over removed columns. Expression key parts ("")
// pass through untouched; eligibility of those is decided during analysis.
func filterIndexes(indexes []introspection.Index, allowedColumns map[string]bool) []introspection.Index {
	filtered := make([]introspection.Index, 0, len(indexes))
	for _, idx := range indexes {
		keep := true
		for _, col := range idx.Columns {
			if col != "" && !allowedColumns[col] {
				keep = false
				break
			}
		}
		if keep {
			filtered = append(filtered, idx)
		}
	}
	return filtered
}

func allAllowed(columns []string, allowedColumns map[string]bool) bool {
	for _, col := range columns {
		if !allowedColumns[col] {
			return false
		}
	}
	return true
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		// matching should be case-insensitive
		ok, err := path.Match(strings.ToLower(pattern), value)
		if err != nil {
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
