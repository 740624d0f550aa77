package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"tidb-loadergen/internal/sqlutil"
)

// PlanLookupBatch builds the SQL for a batched key lookup against one table.
// An empty selectColumns list selects every column. An empty plan yields a
// zero SQLQuery, which callers must not execute.
func PlanLookupBatch(table string, selectColumns []string, plan CompositePlan) (SQLQuery, error) {
	if plan.Kind == PlanEmpty {
		return SQLQuery{}, nil
	}
	if table == "" {
		return SQLQuery{}, fmt.Errorf("lookup batch requires a table name")
	}

	cols := sqlutil.QuoteIdentifiers(selectColumns)
	if len(cols) == 0 {
		cols = []string{"*"}
	}

	query, args, err := sq.Select(cols...).
		From(sqlutil.QuoteIdentifier(table)).
		Where(plan.Predicate()).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("failed to build lookup for %s: %w", table, err)
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanLookup plans and renders a batch in one step.
func PlanLookup(table string, selectColumns, keyColumns []string, keys [][]any) (CompositePlan, SQLQuery, error) {
	plan, err := PlanComposite(keyColumns, keys)
	if err != nil {
		return CompositePlan{}, SQLQuery{}, err
	}
	query, err := PlanLookupBatch(table, selectColumns, plan)
	if err != nil {
		return CompositePlan{}, SQLQuery{}, err
	}
	return plan, query, nil
}
