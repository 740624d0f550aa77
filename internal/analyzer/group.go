package analyzer

import (
	"strings"

	"tidb-loadergen/internal/introspection"
	"tidb-loadergen/internal/sqltype"
)

// SourcePrimaryKey names the descriptor produced by a table's primary key.
const SourcePrimaryKey = "primary_key"

// LoaderDescriptor describes one loader to generate for a table.
type LoaderDescriptor struct {
	// Source is "primary_key" or "index:<name>".
	Source  string
	Columns []string
	// Types holds the value type of each key column.
	Types []sqltype.ValueType
	Shape Shape
}

// Group is the set of loaders generated for one table.
type Group struct {
	Table string
	// Columns lists every table column in ordinal order.
	Columns []string
	Loaders []LoaderDescriptor
	// Collations maps key columns whose collation ignores case to that collation.
	Collations map[string]string
	// Timestamps lists key columns holding dates or times, in ordinal order.
	Timestamps []string
}

// LoaderGroup lists the loaders for an analyzed table: the primary key first,
// then indexes in introspected order. A key whose column tuple repeats an
// earlier one is dropped.
func LoaderGroup(t AnalyzedTable) Group {
	group := Group{Table: t.Name}
	for _, col := range t.Table.Columns {
		group.Columns = append(group.Columns, col.Name)
	}
	seen := make(map[string]struct{})

	add := func(source string, key Key) {
		cols := key.ColumnNames()
		sig := strings.Join(cols, "\x00")
		if _, dup := seen[sig]; dup {
			return
		}
		seen[sig] = struct{}{}
		types := make([]sqltype.ValueType, len(key.Columns))
		for i, col := range key.Columns {
			types[i] = col.ValueType
		}
		group.Loaders = append(group.Loaders, LoaderDescriptor{
			Source:  source,
			Columns: cols,
			Types:   types,
			Shape:   key.Shape,
		})
	}

	if t.PrimaryKey != nil {
		add(SourcePrimaryKey, *t.PrimaryKey)
	}
	for _, idx := range t.Indexes {
		add("index:"+idx.Name, idx)
	}
	group.Collations, group.Timestamps = keyColumnTraits(t.Table, group.Loaders)
	return group
}

// keyColumnTraits collects what the runtime needs to match scanned rows to
// keys the way the database compared them.
func keyColumnTraits(table introspection.Table, loaders []LoaderDescriptor) (map[string]string, []string) {
	keyCols := make(map[string]bool)
	for _, desc := range loaders {
		for _, col := range desc.Columns {
			keyCols[col] = true
		}
	}

	var collations map[string]string
	var timestamps []string
	for _, col := range table.Columns {
		if !keyCols[col.Name] {
			continue
		}
		if sqltype.FoldForCollation(col.Collation) != sqltype.FoldNone {
			if collations == nil {
				collations = make(map[string]string)
			}
			collations[col.Name] = col.Collation
		}
		if col.ValueType == sqltype.TypeTimestamp {
			timestamps = append(timestamps, col.Name)
		}
	}
	return collations, timestamps
}

// LoaderGroups builds groups for every table that has at least one loader.
func LoaderGroups(tables []AnalyzedTable) []Group {
	groups := make([]Group, 0, len(tables))
	for _, t := range tables {
		group := LoaderGroup(t)
		if len(group.Loaders) == 0 {
			continue
		}
		groups = append(groups, group)
	}
	return groups
}
