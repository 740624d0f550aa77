package loader

import (
	"encoding/hex"
	"time"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"tidb-loadergen/internal/planner"
	"tidb-loadergen/internal/sqltype"
)

// mysqlTimeLayouts are the text forms of DATE, DATETIME and TIMESTAMP values
// when the driver does not parse them.
var mysqlTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// matcher builds the signatures that pair keys with returned rows. Key values
// are compared the way their column compares them in SQL.
type matcher struct {
	folds      []sqltype.Fold
	timestamps []bool
	collators  map[sqltype.Fold]*collate.Collator
	buf        collate.Buffer
}

func newMatcher(table Table, columns []string, keys []Key) *matcher {
	m := &matcher{
		folds:      make([]sqltype.Fold, len(columns)),
		timestamps: make([]bool, len(columns)),
	}
	timeCols := make(map[string]bool, len(table.Timestamps))
	for _, col := range table.Timestamps {
		timeCols[col] = true
	}
	for i, col := range columns {
		m.folds[i] = sqltype.FoldForCollation(table.Collations[col])
		m.timestamps[i] = timeCols[col]
	}
	// A time.Time key marks its column even when the table does not list it.
	for _, key := range keys {
		for i, v := range key {
			if _, ok := v.(time.Time); ok && i < len(m.timestamps) {
				m.timestamps[i] = true
			}
		}
	}
	return m
}

// groupRows indexes rows by their key signature. Rows with a NULL key column
// are left out since no key can equal NULL.
func (m *matcher) groupRows(columns []string, rows []Row) map[string][]Row {
	groups := make(map[string][]Row)
	values := make([]any, len(columns))
	for _, row := range rows {
		complete := true
		for i, col := range columns {
			v, ok := row[col]
			if !ok || planner.IsNull(v) {
				complete = false
				break
			}
			values[i] = v
		}
		if !complete {
			continue
		}
		sig := m.signature(values)
		groups[sig] = append(groups[sig], row)
	}
	return groups
}

// keySignature returns "" for keys that hold a NULL; "" never appears in groups.
func (m *matcher) keySignature(key Key) string {
	if hasNull(key) {
		return ""
	}
	return m.signature(key)
}

func (m *matcher) signature(values []any) string {
	normalized := make([]any, len(values))
	for i, v := range values {
		normalized[i] = m.normalize(i, v)
	}
	return planner.TupleKey(normalized)
}

func (m *matcher) normalize(i int, v any) any {
	if m.timestamps[i] {
		if t, ok := timeValue(v); ok {
			return t
		}
	}
	if fold := m.folds[i]; fold != sqltype.FoldNone {
		if s, ok := textValue(v); ok {
			key := hex.EncodeToString(m.collator(fold).KeyFromString(&m.buf, s))
			m.buf.Reset()
			return key
		}
	}
	return v
}

func (m *matcher) collator(fold sqltype.Fold) *collate.Collator {
	if c, ok := m.collators[fold]; ok {
		return c
	}
	opts := []collate.Option{collate.IgnoreCase, collate.IgnoreWidth}
	if fold == sqltype.FoldCaseAndAccents {
		opts = append(opts, collate.IgnoreDiacritics)
	}
	c := collate.New(language.Und, opts...)
	if m.collators == nil {
		m.collators = make(map[sqltype.Fold]*collate.Collator)
	}
	m.collators[fold] = c
	return c
}

func timeValue(v any) (time.Time, bool) {
	var text string
	switch x := v.(type) {
	case time.Time:
		return x, true
	case []byte:
		text = string(x)
	case string:
		text = x
	default:
		return time.Time{}, false
	}
	for _, layout := range mysqlTimeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func textValue(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		if utf8.Valid(x) {
			return string(x), true
		}
	}
	return "", false
}
