package loader

import "tidb-loadergen/internal/planner"

// Key is a lookup key tuple, one value per key column in key order.
type Key []any

// Row is a result row keyed by column name.
type Row map[string]any

// Result is the outcome for one requested key.
type Result[V any] struct {
	Value V
	Err   error
}

// ResolveUnique maps each key to the first row carrying that key, or to a
// *NotFound. Results are aligned with keys.
func ResolveUnique(table Table, columns []string, keys []Key, rows []Row) []Result[Row] {
	m := newMatcher(table, columns, keys)
	groups := m.groupRows(columns, rows)
	results := make([]Result[Row], len(keys))
	for i, key := range keys {
		matches := groups[m.keySignature(key)]
		if len(matches) == 0 {
			results[i] = Result[Row]{Err: newNotFound(table.Name, columns, key)}
			continue
		}
		results[i] = Result[Row]{Value: matches[0]}
	}
	return results
}

// ResolveMany maps each key to every row carrying that key, in result order.
// Keys without rows get an empty, non-nil slice.
func ResolveMany(table Table, columns []string, keys []Key, rows []Row) []Result[[]Row] {
	m := newMatcher(table, columns, keys)
	groups := m.groupRows(columns, rows)
	results := make([]Result[[]Row], len(keys))
	for i, key := range keys {
		matches := groups[m.keySignature(key)]
		if matches == nil {
			matches = []Row{}
		}
		results[i] = Result[[]Row]{Value: matches}
	}
	return results
}

func hasNull(key Key) bool {
	for _, v := range key {
		if planner.IsNull(v) {
			return true
		}
	}
	return false
}
