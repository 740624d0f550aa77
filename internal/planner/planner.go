// Package planner turns batches of key tuples into a single parameterized
// lookup query. Batches that share a leading key segment collapse into
// equalities plus an IN-list; anything else falls back to one OR branch per
// distinct tuple.
package planner

import "errors"

// ErrArityMismatch reports a key tuple whose width differs from the key's
// column count. It always indicates a caller bug.
var ErrArityMismatch = errors.New("key tuple arity mismatch")

// ErrNullKeyValue reports a NULL inside a key tuple. NULL never equals
// anything in SQL, so such tuples must be resolved before planning.
var ErrNullKeyValue = errors.New("key tuple contains NULL")

// SQLQuery holds a parameterized statement and its arguments.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// IsEmpty reports whether there is nothing to execute.
func (q SQLQuery) IsEmpty() bool {
	return q.SQL == ""
}
