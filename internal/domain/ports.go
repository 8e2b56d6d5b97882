package domain

import "context"

// ProbeRelation is a small in-memory relation shipped to the engine as a
// VALUES derived table so predicates and expressions are evaluated with the
// engine's own semantics. Name is the alias the SQL text refers to. A
// single-row relation probes row-level predicates; a multi-row relation
// probes aggregates over one group's member rows.
type ProbeRelation struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// ColumnSchema describes one column of a stored table.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableSchema describes one stored table.
type TableSchema struct {
	Name    string         `json:"name"`
	Columns []ColumnSchema `json:"columns"`
}

// Engine is the narrow capability the simulator consumes from the underlying
// SQL engine. Truth values and expression results are delegated to the
// engine rather than re-implemented, so the simulated flow cannot diverge
// from what the engine would actually return.
type Engine interface {
	// ScanTable returns the full contents of a table.
	ScanTable(ctx context.Context, table string) (*TableData, error)

	// Query executes a SELECT and returns its result set.
	Query(ctx context.Context, sql string) (*TableData, error)

	// Exec executes DDL/DML and reports the affected tables.
	Exec(ctx context.Context, sql string) (*ExecResult, error)

	// EvalPredicate evaluates a boolean predicate against the given
	// relations. A NULL result counts as false, matching SQL filtering.
	// groupBy, when non-empty, names probe relation columns to group by so
	// aggregate predicates can reference grouping columns.
	EvalPredicate(ctx context.Context, predicate string, rels []ProbeRelation, groupBy []string) (bool, error)

	// EvalExprs evaluates scalar or aggregate expressions against the given
	// relations and returns one value per expression. groupBy as above.
	EvalExprs(ctx context.Context, exprs []string, rels []ProbeRelation, groupBy []string) ([]any, error)

	// Tables lists the tables and columns visible to this engine.
	Tables(ctx context.Context) ([]TableSchema, error)
}

// ReleaseFunc returns a session lease taken with Sessions.Acquire.
type ReleaseFunc func()

// Sessions hands out per-session engines under snapshot isolation: readonly
// leases may be held concurrently, a write lease is exclusive.
type Sessions interface {
	Acquire(ctx context.Context, sessionID string, readonly bool) (Engine, ReleaseFunc, error)
}
