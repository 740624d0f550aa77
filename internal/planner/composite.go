package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"tidb-loadergen/internal/sqlutil"
)

// PlanKind identifies the predicate shape chosen for a batch.
type PlanKind int

const (
	// PlanEmpty means the batch had no keys; no query is issued.
	PlanEmpty PlanKind = iota
	// PlanEqualities means every tuple in the batch is the same key.
	PlanEqualities
	// PlanMembership means all columns but the last variable one are fixed.
	PlanMembership
	// PlanDisjunction means two or more columns vary; one branch per tuple.
	PlanDisjunction
)

func (k PlanKind) String() string {
	switch k {
	case PlanEmpty:
		return "empty"
	case PlanEqualities:
		return "equalities"
	case PlanMembership:
		return "membership"
	case PlanDisjunction:
		return "disjunction"
	default:
		return fmt.Sprintf("PlanKind(%d)", int(k))
	}
}

// Equality is a single column = value test.
type Equality struct {
	Column string
	Value  any
}

// Membership is a column IN (values...) test.
type Membership struct {
	Column string
	Values []any
}

// CompositePlan describes the predicate for one batch of key tuples.
type CompositePlan struct {
	Kind    PlanKind
	Columns []string
	// Fixed holds equalities for the leading columns whose value is the same
	// across the whole batch. For PlanEqualities it covers every column.
	Fixed []Equality
	// Membership is set only for PlanMembership.
	Membership *Membership
	// Branches is set only for PlanDisjunction; each branch covers every column.
	Branches [][]Equality
}

// PlanComposite classifies a batch of key tuples over the given columns.
// Leading columns whose value is constant across the batch become fixed
// equalities; the first column that varies and every column after it are
// variable, even if a later column happens to be constant.
func PlanComposite(columns []string, keys [][]any) (CompositePlan, error) {
	if len(columns) == 0 {
		return CompositePlan{}, fmt.Errorf("composite plan requires at least one column")
	}
	plan := CompositePlan{Columns: append([]string(nil), columns...)}
	if len(keys) == 0 {
		plan.Kind = PlanEmpty
		return plan, nil
	}

	width := len(columns)
	// encoded[i][j] is the canonical form of keys[i][j].
	encoded := make([][]string, len(keys))
	for i, key := range keys {
		if len(key) != width {
			return CompositePlan{}, fmt.Errorf("%w: key %d has %d values, expected %d", ErrArityMismatch, i, len(key), width)
		}
		encoded[i] = make([]string, width)
		for j, v := range key {
			if IsNull(v) {
				return CompositePlan{}, fmt.Errorf("%w: key %d column %s", ErrNullKeyValue, i, columns[j])
			}
			encoded[i][j] = CanonicalJSON(v)
		}
	}

	fixed := 0
	for fixed < width && columnConstant(encoded, fixed) {
		plan.Fixed = append(plan.Fixed, Equality{Column: columns[fixed], Value: keys[0][fixed]})
		fixed++
	}

	switch width - fixed {
	case 0:
		plan.Kind = PlanEqualities
	case 1:
		plan.Kind = PlanMembership
		plan.Membership = &Membership{Column: columns[fixed]}
		seen := make(map[string]struct{}, len(keys))
		for i, key := range keys {
			if _, dup := seen[encoded[i][fixed]]; dup {
				continue
			}
			seen[encoded[i][fixed]] = struct{}{}
			plan.Membership.Values = append(plan.Membership.Values, key[fixed])
		}
	default:
		plan.Kind = PlanDisjunction
		seen := make(map[string]struct{}, len(keys))
		for i, key := range keys {
			sig := strings.Join(encoded[i], ",")
			if _, dup := seen[sig]; dup {
				continue
			}
			seen[sig] = struct{}{}
			branch := make([]Equality, width)
			for j, col := range columns {
				branch[j] = Equality{Column: col, Value: key[j]}
			}
			plan.Branches = append(plan.Branches, branch)
		}
	}
	return plan, nil
}

// Predicate renders the plan as a squirrel condition with quoted column
// names, preserving column order. It returns nil for an empty plan.
func (p CompositePlan) Predicate() sq.Sqlizer {
	var parts sq.And
	for _, eq := range p.Fixed {
		parts = append(parts, equalityCond(eq))
	}

	switch p.Kind {
	case PlanEmpty:
		return nil
	case PlanEqualities:
	case PlanMembership:
		values := make([]any, len(p.Membership.Values))
		for i, v := range p.Membership.Values {
			values[i] = sqlArg(v)
		}
		parts = append(parts, sq.Eq{sqlutil.QuoteIdentifier(p.Membership.Column): values})
	case PlanDisjunction:
		branches := make(sq.Or, 0, len(p.Branches))
		for _, branch := range p.Branches {
			conj := make(sq.And, 0, len(branch))
			for _, eq := range branch {
				conj = append(conj, equalityCond(eq))
			}
			branches = append(branches, conj)
		}
		parts = append(parts, branches)
	default:
		panic(fmt.Sprintf("planner: unknown plan kind %d", int(p.Kind)))
	}

	if len(parts) == 1 {
		return parts[0]
	}
	return parts
}

// Matches evaluates the plan against a row in memory. lookup returns the
// row's value for a column.
func (p CompositePlan) Matches(lookup func(column string) any) bool {
	for _, eq := range p.Fixed {
		if !equalityHolds(eq, lookup) {
			return false
		}
	}

	switch p.Kind {
	case PlanEmpty:
		return false
	case PlanEqualities:
		return true
	case PlanMembership:
		got := lookup(p.Membership.Column)
		if IsNull(got) {
			return false
		}
		for _, v := range p.Membership.Values {
			if ValuesEqual(got, v) {
				return true
			}
		}
		return false
	case PlanDisjunction:
		for _, branch := range p.Branches {
			ok := true
			for _, eq := range branch {
				if !equalityHolds(eq, lookup) {
					ok = false
					break
				}
			}
			if ok {
				return true
			}
		}
		return false
	default:
		panic(fmt.Sprintf("planner: unknown plan kind %d", int(p.Kind)))
	}
}

// KeyCount returns how many distinct keys the plan looks up.
func (p CompositePlan) KeyCount() int {
	switch p.Kind {
	case PlanEmpty:
		return 0
	case PlanEqualities:
		return 1
	case PlanMembership:
		return len(p.Membership.Values)
	case PlanDisjunction:
		return len(p.Branches)
	default:
		panic(fmt.Sprintf("planner: unknown plan kind %d", int(p.Kind)))
	}
}

func equalityCond(eq Equality) sq.Eq {
	return sq.Eq{sqlutil.QuoteIdentifier(eq.Column): sqlArg(eq.Value)}
}

// sqlArg keeps squirrel from expanding []byte values into an IN list.
func sqlArg(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func equalityHolds(eq Equality, lookup func(string) any) bool {
	got := lookup(eq.Column)
	if IsNull(got) {
		return false
	}
	return ValuesEqual(got, eq.Value)
}

func columnConstant(encoded [][]string, col int) bool {
	first := encoded[0][col]
	for _, row := range encoded[1:] {
		if row[col] != first {
			return false
		}
	}
	return true
}

// IsNull reports whether a key value is SQL NULL once pointers and
// driver.Valuer values are unwrapped.
func IsNull(v any) bool {
	return canonicalValue(v) == nil
}
