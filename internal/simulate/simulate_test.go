package simulate

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/duckdb/duckdb-go/v2"

	"sqlflow/internal/domain"
	"sqlflow/internal/engine"
	"sqlflow/internal/plan"
	"sqlflow/internal/sqlparse"
)

func openSeeded(t *testing.T) *engine.DuckDB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	stmts := []string{
		`CREATE TABLE users (id INTEGER, name TEXT, age INTEGER, country TEXT)`,
		`INSERT INTO users VALUES
			(1, 'Alice', 34, 'US'),
			(2, 'Bob', 19, 'US'),
			(3, 'Carol', 28, 'DE'),
			(4, 'Dave', 45, 'FR'),
			(5, 'Erin', 22, 'DE'),
			(6, 'Frank', NULL, 'US')`,
		`CREATE TABLE orders (id INTEGER, user_id INTEGER, amount DOUBLE, status TEXT)`,
		`INSERT INTO orders VALUES
			(1, 1, 120.50, 'shipped'),
			(2, 1, 35.00, 'pending'),
			(3, 3, 220.10, 'shipped'),
			(4, 4, 15.75, 'cancelled'),
			(5, 4, 99.99, 'shipped'),
			(6, 9, 42.00, 'pending')`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	return engine.New(db)
}

func runQuery(t *testing.T, eng *engine.DuckDB, query string, opts ...Option) ([]plan.Stage, []domain.DataFlowStep) {
	t.Helper()
	q, err := sqlparse.Parse(query)
	require.NoError(t, err)
	stages := plan.Build(q)
	flow, err := New(eng, opts...).Run(context.Background(), stages)
	require.NoError(t, err)
	require.Len(t, flow, len(stages))
	return stages, flow
}

func includedNames(step domain.DataFlowStep, col string) []string {
	var names []string
	for _, r := range step.Rows {
		if r.Included {
			names = append(names, r.Data[col].(string))
		}
	}
	return names
}

func TestRun_ScanIncludesAllRows(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT * FROM users")

	scan := flow[0]
	assert.Equal(t, domain.StepFrom, scan.StepType)
	assert.Equal(t, []string{"id", "name", "age", "country"}, scan.Columns)
	assert.Equal(t, domain.FlowStats{TotalRows: 6, IncludedRows: 6}, scan.Stats)
	for _, r := range scan.Rows {
		assert.True(t, r.Included)
		assert.Empty(t, r.ExcludedReason)
	}
}

func TestRun_WhereMarksRowsWithReason(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT name FROM users WHERE age > 21")

	where := flow[1]
	require.Equal(t, domain.StepWhere, where.StepType)
	assert.Equal(t, domain.FlowStats{TotalRows: 6, IncludedRows: 4, ExcludedRows: 2}, where.Stats)

	// Excluded rows stay visible, each with the predicate as reason.
	for _, r := range where.Rows {
		switch r.Data["name"] {
		case "Bob", "Frank":
			assert.False(t, r.Included)
			assert.Equal(t, "Does not match: age > 21", r.ExcludedReason)
		default:
			assert.True(t, r.Included)
			assert.Empty(t, r.ExcludedReason)
		}
	}

	// Exclusion survives into the SELECT stage untouched.
	sel := flow[2]
	require.Equal(t, domain.StepSelect, sel.StepType)
	assert.Equal(t, []string{"name"}, sel.Columns)
	assert.Equal(t, []string{"Alice", "Carol", "Dave", "Erin"}, includedNames(sel, "name"))
	for _, r := range sel.Rows {
		if r.Data["name"] == "Bob" {
			assert.Equal(t, "Does not match: age > 21", r.ExcludedReason)
		}
	}
}

func TestRun_SnapshotsAreIndependent(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT name, age FROM users WHERE age > 21")

	// Mutating a later snapshot must not leak into an earlier one.
	flow[2].Rows[0].Data["name"] = "mutated"
	assert.NotEqual(t, "mutated", flow[0].Rows[0].Data["name"])
}

func TestRun_GroupByCollapsesWithProvenance(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT country, COUNT(*) AS n FROM users GROUP BY country")

	group := flow[1]
	require.Equal(t, domain.StepGroupBy, group.StepType)
	// Six rows entered, three groups left.
	assert.Equal(t, domain.FlowStats{TotalRows: 6, IncludedRows: 3, ExcludedRows: 3}, group.Stats)
	assert.Len(t, group.Rows, 3)

	sel := flow[2]
	assert.Equal(t, []string{"country", "n"}, sel.Columns)
	counts := map[string]int64{}
	for _, r := range sel.Rows {
		require.True(t, r.Included)
		counts[r.Data["country"].(string)] = toInt64(t, r.Data["n"])
	}
	assert.Equal(t, map[string]int64{"US": 3, "DE": 2, "FR": 1}, counts)
}

func TestRun_HavingExcludesGroupsWithActualValue(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT country, COUNT(*) AS n FROM users GROUP BY country HAVING COUNT(*) > 1")

	having := flow[2]
	require.Equal(t, domain.StepHaving, having.StepType)

	var excluded []domain.RowState
	for _, r := range having.Rows {
		if !r.Included {
			excluded = append(excluded, r)
		}
	}
	require.Len(t, excluded, 1)
	assert.Equal(t, "FR", excluded[0].Data["country"])
	assert.Equal(t, "Does not match: COUNT(*) > 1 (actual: 1)", excluded[0].ExcludedReason)

	sel := flow[3]
	assert.ElementsMatch(t, []string{"US", "DE"}, includedNames(sel, "country"))
}

func TestRun_HavingWithoutGroupBy(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)

	// All included rows form one implicit group; here it fails as a unit.
	_, flow := runQuery(t, eng, "SELECT COUNT(*) AS n FROM users HAVING COUNT(*) > 10")

	having := flow[1]
	require.Equal(t, domain.StepHaving, having.StepType)
	assert.Equal(t, domain.FlowStats{TotalRows: 6, IncludedRows: 0, ExcludedRows: 6}, having.Stats)
	require.Len(t, having.Rows, 1)
	assert.False(t, having.Rows[0].Included)
	assert.Equal(t, "Does not match: COUNT(*) > 10 (actual: 6)", having.Rows[0].ExcludedReason)

	sel := flow[2]
	assert.Equal(t, []string{"n"}, sel.Columns)
	assert.Equal(t, 0, sel.Stats.IncludedRows)
}

func TestRun_HavingWithoutGroupBySurvives(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT COUNT(*) AS n FROM users HAVING COUNT(*) > 2")

	having := flow[1]
	assert.Equal(t, domain.FlowStats{TotalRows: 6, IncludedRows: 1, ExcludedRows: 5}, having.Stats)

	sel := flow[2]
	require.Equal(t, 1, sel.Stats.IncludedRows)
	assert.Equal(t, int64(6), toInt64(t, sel.Rows[0].Data["n"]))
}

func TestRun_QualifiedGroupByAfterJoin(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng,
		"SELECT u.country, COUNT(*) AS n FROM users u JOIN orders o ON u.id = o.user_id GROUP BY u.country HAVING COUNT(*) > 1")

	group := flow[2]
	require.Equal(t, domain.StepGroupBy, group.StepType)
	assert.Equal(t, domain.FlowStats{TotalRows: 5, IncludedRows: 3, ExcludedRows: 2}, group.Stats)

	having := flow[3]
	require.Equal(t, domain.StepHaving, having.StepType)
	assert.ElementsMatch(t, []string{"US", "FR"}, includedNames(having, "country"))

	var excluded []domain.RowState
	for _, r := range having.Rows {
		if !r.Included {
			excluded = append(excluded, r)
		}
	}
	require.Len(t, excluded, 1)
	assert.Equal(t, "DE", excluded[0].Data["country"])
	assert.Equal(t, "Does not match: COUNT(*) > 1 (actual: 1)", excluded[0].ExcludedReason)

	sel := flow[4]
	assert.Equal(t, []string{"country", "n"}, sel.Columns)
	for _, r := range sel.Rows {
		if r.Included {
			assert.Equal(t, int64(2), toInt64(t, r.Data["n"]))
		}
	}
}

func TestRun_InnerJoinKeepsMatchesOnly(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT u.name, o.amount FROM users u JOIN orders o ON u.id = o.user_id")

	join := flow[1]
	require.Equal(t, domain.StepJoin, join.StepType)
	// Five orders match a user; the orphan order (user_id 9) never enters.
	assert.Equal(t, 5, join.Stats.TotalRows)
	assert.Equal(t, 5, join.Stats.IncludedRows)

	// Shared column names are namespaced by binding; unique ones stay bare.
	assert.Contains(t, join.Columns, "u.id")
	assert.Contains(t, join.Columns, "o.id")
	assert.Contains(t, join.Columns, "name")
	assert.Contains(t, join.Columns, "amount")

	sel := flow[2]
	assert.Equal(t, []string{"name", "amount"}, sel.Columns)
	assert.ElementsMatch(t, []string{"Alice", "Alice", "Carol", "Dave", "Dave"}, includedNames(sel, "name"))
}

func TestRun_LeftJoinContributesNullRows(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT u.name, o.amount FROM users u LEFT JOIN orders o ON u.id = o.user_id")

	join := flow[1]
	// 5 matches plus 3 users without orders (Bob, Erin, Frank).
	assert.Equal(t, 8, join.Stats.TotalRows)

	var nullAmounts int
	for _, r := range join.Rows {
		require.True(t, r.Included)
		if r.Data["amount"] == nil {
			nullAmounts++
		}
	}
	assert.Equal(t, 3, nullAmounts)
}

func TestRun_JoinRowCap(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	q, err := sqlparse.Parse("SELECT * FROM users u CROSS JOIN orders o")
	require.NoError(t, err)

	_, err = New(eng, WithMaxJoinRows(10)).Run(context.Background(), plan.Build(q))
	require.Error(t, err)
	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "row cap")
}

func TestRun_OrderBySortsIncludedRows(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT name FROM users WHERE age > 21 ORDER BY age DESC")

	order := flow[3]
	require.Equal(t, domain.StepOrderBy, order.StepType)
	assert.Equal(t, []string{"Dave", "Alice", "Carol", "Erin"}, includedNames(order, "name"))
}

func TestRun_OrderByNullsLast(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT name FROM users ORDER BY age")

	order := flow[2]
	names := includedNames(order, "name")
	require.Len(t, names, 6)
	assert.Equal(t, []string{"Bob", "Erin", "Carol", "Alice", "Dave", "Frank"}, names)

	_, flowDesc := runQuery(t, eng, "SELECT name FROM users ORDER BY age DESC")
	namesDesc := includedNames(flowDesc[2], "name")
	assert.Equal(t, "Frank", namesDesc[len(namesDesc)-1], "nulls sort last in both directions")
}

func TestRun_OrderByAliasColumn(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT country, COUNT(*) AS n FROM users GROUP BY country ORDER BY n DESC")

	order := flow[3]
	assert.Equal(t, []string{"US", "DE", "FR"}, includedNames(order, "country"))
}

func TestRun_LimitOffsetWindow(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT name FROM users ORDER BY age LIMIT 2 OFFSET 1")

	limit := flow[3]
	require.Equal(t, domain.StepLimit, limit.StepType)
	offset := flow[4]
	require.Equal(t, domain.StepOffset, offset.StepType)

	// The window is [offset, offset+limit): rows 1 and 2 of the sorted order.
	assert.Equal(t, []string{"Erin", "Carol"}, includedNames(offset, "name"))

	// Marked rows stay in the list with the window reason.
	for _, r := range offset.Rows {
		if !r.Included {
			assert.Equal(t, "Excluded by LIMIT/OFFSET", r.ExcludedReason)
		}
	}
	assert.Equal(t, 6, len(offset.Rows))
}

func TestRun_DistinctDropsDuplicates(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT DISTINCT country FROM users")

	distinct := flow[2]
	require.Equal(t, domain.StepDistinct, distinct.StepType)
	assert.Equal(t, domain.FlowStats{TotalRows: 6, IncludedRows: 3, ExcludedRows: 3}, distinct.Stats)
	assert.Equal(t, []string{"US", "DE", "FR"}, includedNames(distinct, "country"))
}

func TestRun_ImplicitAggregateCollapses(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT COUNT(*) AS n FROM users WHERE age > 21")

	sel := flow[2]
	require.Equal(t, domain.StepSelect, sel.StepType)
	require.Len(t, sel.Rows, 1)
	assert.EqualValues(t, 4, toInt64(t, sel.Rows[0].Data["n"]))
	assert.Equal(t, domain.FlowStats{TotalRows: 4, IncludedRows: 1, ExcludedRows: 3}, sel.Stats)
}

func TestRun_SelectExpressionComputed(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	_, flow := runQuery(t, eng, "SELECT name, age * 2 AS doubled FROM users WHERE age = 34")

	sel := flow[2]
	assert.Equal(t, []string{"name", "doubled"}, sel.Columns)
	for _, r := range sel.Rows {
		if r.Included {
			assert.EqualValues(t, 68, toInt64(t, r.Data["doubled"]))
		}
	}
}

func TestRun_UnknownTableFailsWholeRun(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	q, err := sqlparse.Parse("SELECT * FROM missing")
	require.NoError(t, err)

	_, err = New(eng).Run(context.Background(), plan.Build(q))
	require.Error(t, err)
	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "FROM missing", execErr.Clause)
}

func TestRun_UnknownColumnInOrderBy(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	q, err := sqlparse.Parse("SELECT name FROM users ORDER BY nope")
	require.NoError(t, err)

	_, err = New(eng).Run(context.Background(), plan.Build(q))
	require.Error(t, err)
	var execErr *domain.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Message, "nope")
}

func TestAssemble(t *testing.T) {
	t.Parallel()

	eng := openSeeded(t)
	stages, flow := runQuery(t, eng, "SELECT name FROM users WHERE age > 21 ORDER BY age")

	viz := Assemble("SELECT name FROM users WHERE age > 21 ORDER BY age", stages, flow)
	require.Len(t, viz.ExecutionSteps, len(stages))
	for i, step := range viz.ExecutionSteps {
		assert.Equal(t, i+1, step.Order)
		assert.Equal(t, stages[i].Clause, step.Clause)
	}

	// Final result carries only the included rows of the last stage,
	// projected to its columns.
	assert.Equal(t, []string{"name"}, viz.FinalResult.Columns)
	require.Len(t, viz.FinalResult.Rows, 4)
	assert.Equal(t, "Erin", viz.FinalResult.Rows[0]["name"])
	for _, row := range viz.FinalResult.Rows {
		assert.Len(t, row, 1)
	}
}

func toInt64(t *testing.T, v any) int64 {
	t.Helper()
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	default:
		t.Fatalf("unexpected numeric type %T", v)
		return 0
	}
}
