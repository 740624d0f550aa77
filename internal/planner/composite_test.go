package planner

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var postKeyColumns = []string{"author_id", "category"}

func TestPlanComposite_RepeatedKeyIsEqualities(t *testing.T) {
	plan, err := PlanComposite(postKeyColumns, [][]any{{1, "tech"}, {1, "tech"}})
	require.NoError(t, err)

	assert.Equal(t, PlanEqualities, plan.Kind)
	assert.Equal(t, []Equality{
		{Column: "author_id", Value: 1},
		{Column: "category", Value: "tech"},
	}, plan.Fixed)
	assert.Nil(t, plan.Membership)
	assert.Empty(t, plan.Branches)
	assert.Equal(t, 1, plan.KeyCount())
}

func TestPlanComposite_SharedPrefixIsMembership(t *testing.T) {
	plan, err := PlanComposite(postKeyColumns, [][]any{{1, "tech"}, {1, "news"}, {1, "sports"}})
	require.NoError(t, err)

	assert.Equal(t, PlanMembership, plan.Kind)
	assert.Equal(t, []Equality{{Column: "author_id", Value: 1}}, plan.Fixed)
	require.NotNil(t, plan.Membership)
	assert.Equal(t, "category", plan.Membership.Column)
	assert.Equal(t, []any{"tech", "news", "sports"}, plan.Membership.Values)
}

func TestPlanComposite_MembershipDeduplicates(t *testing.T) {
	keys := [][]any{{1, "tech"}, {int64(1), "news"}, {1, "tech"}, {uint8(1), []byte("news")}, {1, "art"}}
	plan, err := PlanComposite(postKeyColumns, keys)
	require.NoError(t, err)

	require.Equal(t, PlanMembership, plan.Kind)
	assert.Equal(t, []any{"tech", "news", "art"}, plan.Membership.Values)
	assert.Equal(t, 3, plan.KeyCount())
}

func TestPlanComposite_NoSharedPrefixIsDisjunction(t *testing.T) {
	plan, err := PlanComposite(postKeyColumns, [][]any{{1, "tech"}, {2, "news"}})
	require.NoError(t, err)

	assert.Equal(t, PlanDisjunction, plan.Kind)
	assert.Empty(t, plan.Fixed)
	assert.Equal(t, [][]Equality{
		{{Column: "author_id", Value: 1}, {Column: "category", Value: "tech"}},
		{{Column: "author_id", Value: 2}, {Column: "category", Value: "news"}},
	}, plan.Branches)
}

func TestPlanComposite_DisjunctionCollapsesDuplicateTuples(t *testing.T) {
	keys := [][]any{{1, "tech"}, {2, "news"}, {1, "tech"}, {2, "news"}, {3, "tech"}}
	plan, err := PlanComposite(postKeyColumns, keys)
	require.NoError(t, err)

	assert.Equal(t, PlanDisjunction, plan.Kind)
	assert.Len(t, plan.Branches, 3)
}

func TestPlanComposite_FixedColumnsMustBePrefix(t *testing.T) {
	// The last column is constant but follows a varying one, so it stays variable.
	columns := []string{"tenant_id", "author_id", "category"}
	keys := [][]any{{7, 1, "tech"}, {7, 2, "tech"}}

	plan, err := PlanComposite(columns, keys)
	require.NoError(t, err)

	assert.Equal(t, PlanDisjunction, plan.Kind)
	assert.Equal(t, []Equality{{Column: "tenant_id", Value: 7}}, plan.Fixed)
	require.Len(t, plan.Branches, 2)
	for _, branch := range plan.Branches {
		assert.Len(t, branch, 3)
	}
}

func TestPlanComposite_Empty(t *testing.T) {
	plan, err := PlanComposite(postKeyColumns, nil)
	require.NoError(t, err)

	assert.Equal(t, PlanEmpty, plan.Kind)
	assert.Nil(t, plan.Predicate())
	assert.Equal(t, 0, plan.KeyCount())
	assert.False(t, plan.Matches(func(string) any { return 1 }))
}

func TestPlanComposite_SingleColumn(t *testing.T) {
	plan, err := PlanComposite([]string{"id"}, [][]any{{1}, {2}, {2}})
	require.NoError(t, err)
	assert.Equal(t, PlanMembership, plan.Kind)
	assert.Equal(t, []any{1, 2}, plan.Membership.Values)

	plan, err = PlanComposite([]string{"id"}, [][]any{{5}, {int64(5)}})
	require.NoError(t, err)
	assert.Equal(t, PlanEqualities, plan.Kind)
}

func TestPlanComposite_Errors(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		keys    [][]any
		target  error
	}{
		{name: "short tuple", columns: postKeyColumns, keys: [][]any{{1, "tech"}, {1}}, target: ErrArityMismatch},
		{name: "long tuple", columns: postKeyColumns, keys: [][]any{{1, "tech", "extra"}}, target: ErrArityMismatch},
		{name: "null value", columns: postKeyColumns, keys: [][]any{{1, nil}}, target: ErrNullKeyValue},
		{name: "no columns", columns: nil, keys: [][]any{{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanComposite(tt.columns, tt.keys)
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}

func TestPlanComposite_ArityErrorNamesPosition(t *testing.T) {
	_, err := PlanComposite(postKeyColumns, [][]any{{1, "tech"}, {1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key 1 has 1 values, expected 2")
}

func TestPlanKindString(t *testing.T) {
	assert.Equal(t, "empty", PlanEmpty.String())
	assert.Equal(t, "equalities", PlanEqualities.String())
	assert.Equal(t, "membership", PlanMembership.String())
	assert.Equal(t, "disjunction", PlanDisjunction.String())
	assert.Equal(t, "PlanKind(7)", PlanKind(7).String())
}

// Every row matching some key must satisfy the plan, and no other row may.
func TestPlanComposite_SoundAndComplete(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	columns := []string{"a", "b", "c"}
	domains := [][]any{{1, 2}, {"x", "y", "z"}, {10, 20}}

	var universe [][]any
	for _, a := range domains[0] {
		for _, b := range domains[1] {
			for _, c := range domains[2] {
				universe = append(universe, []any{a, b, c})
			}
		}
	}

	for iter := 0; iter < 500; iter++ {
		n := rng.Intn(8) + 1
		keys := make([][]any, n)
		for i := range keys {
			keys[i] = universe[rng.Intn(len(universe))]
		}
		// Bias some batches towards shared prefixes.
		if iter%3 == 0 {
			for i := range keys {
				keys[i] = []any{keys[0][0], keys[0][1], keys[i][2]}
			}
		}

		plan, err := PlanComposite(columns, keys)
		require.NoError(t, err)

		requested := make(map[string]bool)
		for _, k := range keys {
			requested[TupleKey(k)] = true
		}
		for _, row := range universe {
			lookup := func(col string) any {
				for i, name := range columns {
					if name == col {
						return row[i]
					}
				}
				return nil
			}
			assert.Equal(t, requested[TupleKey(row)], plan.Matches(lookup), "iter %d plan %s row %v keys %v", iter, plan.Kind, row, keys)
		}
		assert.Equal(t, len(requested), plan.KeyCount(), "iter %d", iter)
	}
}

func TestPlanComposite_ShapeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	columns := []string{"owner_id", "kind", "slot"}

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(10) + 1

		// All identical.
		same := make([][]any, n)
		for i := range same {
			same[i] = []any{3, "doc", 9}
		}
		plan, err := PlanComposite(columns, same)
		require.NoError(t, err)
		assert.Equal(t, PlanEqualities, plan.Kind)
		assert.Len(t, plan.Fixed, 3)

		// Constant prefix, varying last column.
		prefix := make([][]any, n)
		distinct := make(map[int]struct{})
		for i := range prefix {
			v := rng.Intn(4)
			distinct[v] = struct{}{}
			prefix[i] = []any{3, "doc", v}
		}
		plan, err = PlanComposite(columns, prefix)
		require.NoError(t, err)
		if len(distinct) == 1 {
			assert.Equal(t, PlanEqualities, plan.Kind)
		} else {
			assert.Equal(t, PlanMembership, plan.Kind)
			assert.Len(t, plan.Membership.Values, len(distinct))
			assert.Len(t, plan.Fixed, 2)
		}
	}
}
