package loader

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"tidb-loadergen/internal/planner"
)

// ColumnValue is one column/value pair of a lookup key.
type ColumnValue struct {
	Column string
	Value  any
}

// NotFound is the per-key result of a unique lookup that matched no row.
// It is returned as a value alongside other keys' rows; it never aborts a batch.
type NotFound struct {
	Table   string
	Columns []ColumnValue
}

func (e *NotFound) Error() string {
	var b strings.Builder
	b.WriteString("record not found in ")
	b.WriteString(e.Table)
	b.WriteString(" for ")
	for i, cv := range e.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(cv.Column)
		b.WriteByte('=')
		b.WriteString(messageValue(cv.Value))
	}
	return b.String()
}

// messageValue renders a key value as the caller passed it. Canonical forms
// are for matching only.
func messageValue(v any) string {
	if valuer, ok := v.(driver.Valuer); ok {
		if val, err := valuer.Value(); err == nil {
			v = val
		}
	}
	if b, ok := v.([]byte); ok && utf8.Valid(b) {
		v = string(b)
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return planner.CanonicalJSON(v)
	}
	return string(encoded)
}

// Values returns the key as a column to value map.
func (e *NotFound) Values() map[string]any {
	out := make(map[string]any, len(e.Columns))
	for _, cv := range e.Columns {
		out[cv.Column] = cv.Value
	}
	return out
}

// IsNotFound reports whether err is, or wraps, a *NotFound.
func IsNotFound(err error) bool {
	var nf *NotFound
	return errors.As(err, &nf)
}

func newNotFound(table string, columns []string, key Key) *NotFound {
	nf := &NotFound{Table: table, Columns: make([]ColumnValue, len(columns))}
	for i, col := range columns {
		nf.Columns[i] = ColumnValue{Column: col, Value: key[i]}
	}
	return nf
}
