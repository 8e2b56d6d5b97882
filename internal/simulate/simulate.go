// Package simulate threads a working row set through the planned stages of
// a SELECT query, marking every row with inclusion state and, on exclusion,
// a reason tied to the predicate that dropped it. Truth values come from the
// live engine so the trace cannot diverge from real execution.
package simulate

import (
	"context"
	"fmt"
	"strings"

	"sqlflow/internal/domain"
	"sqlflow/internal/plan"
)

// Simulator runs planned stages against one session's engine. Construct one
// per request; it carries no state between runs.
type Simulator struct {
	engine      domain.Engine
	maxJoinRows int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithMaxJoinRows caps the physical row count a join stage may produce.
// Zero means no cap.
func WithMaxJoinRows(n int) Option {
	return func(s *Simulator) { s.maxJoinRows = n }
}

// New creates a Simulator over the given engine.
func New(engine domain.Engine, opts ...Option) *Simulator {
	s := &Simulator{engine: engine}
	for _, o := range opts {
		o(s)
	}
	return s
}

// source is one relation participating in the working set.
type source struct {
	binding string   // name the SQL text refers to (alias or table name)
	table   string   // underlying table name
	cols    []string // base column names
	keys    []string // column keys in the combined working rows
}

// state is the working set threaded between stages.
type state struct {
	rows     []domain.RowState
	columns  []string // display columns
	sources  []source
	groups   [][]domain.Row // member rows per representative, aligned with rows
	groupBy  []string       // group keys resolved to working-set columns
	fromRaw  string         // verbatim FROM clause for cumulative join queries
	joinRaws []string       // verbatim JOIN clauses processed so far
}

// Run executes the stages in order and returns one data-flow snapshot per
// stage. Any stage failure aborts the whole run: a partial trace is worse
// than no trace.
func (s *Simulator) Run(ctx context.Context, stages []plan.Stage) ([]domain.DataFlowStep, error) {
	st := &state{}
	flow := make([]domain.DataFlowStep, 0, len(stages))

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return nil, domain.ErrExecutionClause(stage.Clause, "visualization aborted: %v", err)
		}

		var (
			stats *domain.FlowStats
			err   error
		)
		switch op := stage.Op.(type) {
		case plan.ScanOp:
			err = s.scan(ctx, st, stage, op)
		case plan.JoinOp:
			err = s.join(ctx, st, stage, op)
		case plan.FilterOp:
			err = s.filter(ctx, st, stage, op)
		case plan.GroupOp:
			stats, err = s.group(st, stage, op)
		case plan.HavingOp:
			stats, err = s.having(ctx, st, stage, op)
		case plan.ProjectOp:
			stats, err = s.project(ctx, st, stage, op)
		case plan.DistinctOp:
			stats = s.distinct(st)
		case plan.SortOp:
			err = s.sortRows(st, stage, op)
		case plan.LimitOp:
			s.limit(st, op)
		case plan.OffsetOp:
			s.offset(st, op)
		default:
			err = domain.ErrExecution("unsupported stage type %s", stage.Type)
		}
		if err != nil {
			return nil, err
		}

		flow = append(flow, snapshot(stage, st, stats))
	}

	return flow, nil
}

// scan loads the base table; every row enters included.
func (s *Simulator) scan(ctx context.Context, st *state, stage plan.Stage, op plan.ScanOp) error {
	td, err := s.engine.ScanTable(ctx, op.Table)
	if err != nil {
		return domain.ErrExecutionClause(stage.Clause, "%v", err)
	}

	st.sources = []source{{binding: op.Binding, table: op.Table, cols: td.Columns, keys: td.Columns}}
	st.columns = td.Columns
	st.fromRaw = stage.Clause
	st.rows = make([]domain.RowState, len(td.Rows))
	for i, r := range td.Rows {
		st.rows[i] = domain.RowState{Data: r, Included: true}
	}
	return nil
}

// join re-materializes the working set as the engine's combined match set
// for all joins processed so far, left-deep in textual order. Unmatched
// inner-join rows never enter the set; outer joins contribute null-filled
// counterparts, included.
func (s *Simulator) join(ctx context.Context, st *state, stage plan.Stage, op plan.JoinOp) error {
	cols, err := s.tableColumns(ctx, op.Join.Table)
	if err != nil {
		return domain.ErrExecutionClause(stage.Clause, "%v", err)
	}

	next := append(append([]source{}, st.sources...), source{
		binding: op.Join.Binding(),
		table:   op.Join.Table,
		cols:    cols,
	})
	assignKeys(next)

	var sel strings.Builder
	sel.WriteString("SELECT ")
	first := true
	for _, src := range next {
		for i, c := range src.cols {
			if !first {
				sel.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&sel, "%s.%s AS %s", quoteIdent(src.binding), quoteIdent(c), quoteIdent(src.keys[i]))
		}
	}
	sel.WriteString(" ")
	sel.WriteString(st.fromRaw)
	for _, jr := range st.joinRaws {
		sel.WriteString(" ")
		sel.WriteString(jr)
	}
	sel.WriteString(" ")
	sel.WriteString(stage.Clause)

	td, err := s.engine.Query(ctx, sel.String())
	if err != nil {
		return domain.ErrExecutionClause(stage.Clause, "join failed: %v", err)
	}
	if s.maxJoinRows > 0 && len(td.Rows) > s.maxJoinRows {
		return domain.ErrExecutionClause(stage.Clause,
			"join produced %d rows, exceeding the row cap of %d", len(td.Rows), s.maxJoinRows)
	}

	st.sources = next
	st.columns = allKeys(next)
	st.joinRaws = append(st.joinRaws, stage.Clause)
	st.rows = make([]domain.RowState, len(td.Rows))
	for i, r := range td.Rows {
		st.rows[i] = domain.RowState{Data: r, Included: true}
	}
	return nil
}

// filter evaluates the WHERE predicate per row. Rows already excluded pass
// through untouched; their reason is never re-derived.
func (s *Simulator) filter(ctx context.Context, st *state, stage plan.Stage, op plan.FilterOp) error {
	for i := range st.rows {
		r := &st.rows[i]
		if !r.Included {
			continue
		}
		ok, err := s.engine.EvalPredicate(ctx, op.Predicate, relsForRow(st.sources, r.Data), nil)
		if err != nil {
			return domain.ErrExecutionClause(stage.Clause, "cannot evaluate predicate: %v", err)
		}
		if !ok {
			r.Included = false
			r.ExcludedReason = "Does not match: " + op.Predicate
		}
	}
	return nil
}

// group collapses included rows into one representative per group key.
// Rows excluded upstream drop out of the physical set here; the stage stats
// keep the pre-collapse population visible.
func (s *Simulator) group(st *state, stage plan.Stage, op plan.GroupOp) (*domain.FlowStats, error) {
	type bucket struct {
		rep     domain.Row
		members []domain.Row
	}
	// Group-by text like u.country must map onto working-set columns before
	// it can bucket rows locally or name columns in a group probe.
	keys := make([]string, len(op.Columns))
	for i, col := range op.Columns {
		k, ok := resolveKey(st, col)
		if !ok {
			return nil, domain.ErrExecutionClause(stage.Clause, "unknown column %q in GROUP BY", col)
		}
		keys[i] = k
	}

	var (
		order   []string
		buckets = map[string]*bucket{}
	)

	entering := 0
	for _, r := range st.rows {
		if !r.Included {
			continue
		}
		entering++
		var keyParts []string
		for _, k := range keys {
			keyParts = append(keyParts, fmt.Sprintf("%v", r.Data[k]))
		}
		key := strings.Join(keyParts, "\x1f")
		b, seen := buckets[key]
		if !seen {
			b = &bucket{rep: r.Data}
			buckets[key] = b
			order = append(order, key)
		}
		b.members = append(b.members, r.Data)
	}

	st.rows = make([]domain.RowState, len(order))
	st.groups = make([][]domain.Row, len(order))
	for i, key := range order {
		st.rows[i] = domain.RowState{Data: buckets[key].rep, Included: true}
		st.groups[i] = buckets[key].members
	}
	st.groupBy = keys

	stats := &domain.FlowStats{
		TotalRows:    entering,
		IncludedRows: len(order),
		ExcludedRows: entering - len(order),
	}
	return stats, nil
}

// having evaluates the aggregate predicate over each group's member rows.
// Without a GROUP BY stage the whole included set forms one implicit group,
// which survives or fails as a unit.
func (s *Simulator) having(ctx context.Context, st *state, stage plan.Stage, op plan.HavingOp) (*domain.FlowStats, error) {
	var stats *domain.FlowStats
	if st.groups == nil {
		entering := collapseImplicitGroup(st)
		total := entering
		if total == 0 {
			total = 1
		}
		stats = &domain.FlowStats{TotalRows: total}
	}

	for i := range st.rows {
		r := &st.rows[i]
		if !r.Included {
			continue
		}
		rel := groupRelation(st, st.groups[i])
		ok, err := s.engine.EvalPredicate(ctx, op.Predicate, []domain.ProbeRelation{rel}, st.groupBy)
		if err != nil {
			return nil, domain.ErrExecutionClause(stage.Clause, "cannot evaluate predicate: %v", err)
		}
		if ok {
			continue
		}

		reason := "Does not match: " + op.Predicate
		if len(op.Aggregates) > 0 {
			vals, aerr := s.engine.EvalExprs(ctx, op.Aggregates[:1], []domain.ProbeRelation{rel}, st.groupBy)
			if aerr == nil && len(vals) == 1 {
				reason = fmt.Sprintf("Does not match: %s (actual: %v)", op.Predicate, vals[0])
			}
		}
		r.Included = false
		r.ExcludedReason = reason
	}

	if stats != nil {
		included := 0
		for _, r := range st.rows {
			if r.Included {
				included++
			}
		}
		stats.IncludedRows = included
		stats.ExcludedRows = stats.TotalRows - included
	}
	return stats, nil
}

// collapseImplicitGroup rebuilds the working set as the single group an
// ungrouped HAVING operates on. Returns the number of rows that entered it.
func collapseImplicitGroup(st *state) int {
	var members []domain.Row
	for _, r := range st.rows {
		if r.Included {
			members = append(members, r.Data)
		}
	}
	rep := domain.Row{}
	if len(members) > 0 {
		rep = members[0]
	}
	st.rows = []domain.RowState{{Data: rep, Included: true}}
	st.groups = [][]domain.Row{members}
	st.groupBy = nil
	return len(members)
}

// limit marks rows beyond the end of the LIMIT/OFFSET window. The window
// start is handled by the OFFSET stage; together they keep rows
// [offset, offset+n). Rows excluded upstream do not count toward the window.
func (s *Simulator) limit(st *state, op plan.LimitOp) {
	end := op.N
	if op.HasOffset {
		end = op.Offset + op.N
	}
	pos := 0
	for i := range st.rows {
		r := &st.rows[i]
		if !r.Included {
			continue
		}
		if pos >= end {
			r.Included = false
			r.ExcludedReason = "Excluded by LIMIT/OFFSET"
		}
		pos++
	}
}

// offset marks the rows before the start of the window.
func (s *Simulator) offset(st *state, op plan.OffsetOp) {
	pos := 0
	for i := range st.rows {
		r := &st.rows[i]
		if !r.Included {
			continue
		}
		if pos < op.N {
			r.Included = false
			r.ExcludedReason = "Excluded by LIMIT/OFFSET"
		}
		pos++
	}
}

// tableColumns returns the column names of a stored table.
func (s *Simulator) tableColumns(ctx context.Context, table string) ([]string, error) {
	schemas, err := s.engine.Tables(ctx)
	if err != nil {
		return nil, err
	}
	for _, ts := range schemas {
		if strings.EqualFold(ts.Name, table) {
			cols := make([]string, len(ts.Columns))
			for i, c := range ts.Columns {
				cols[i] = c.Name
			}
			return cols, nil
		}
	}
	return nil, fmt.Errorf("table %q does not exist", table)
}

// snapshot captures the current working set as a DataFlowStep. Row data is
// deep-copied so later stages cannot mutate earlier snapshots.
func snapshot(stage plan.Stage, st *state, stats *domain.FlowStats) domain.DataFlowStep {
	rows := make([]domain.RowState, len(st.rows))
	for i, r := range st.rows {
		data := make(domain.Row, len(r.Data))
		for k, v := range r.Data {
			data[k] = v
		}
		rows[i] = domain.RowState{Data: data, Included: r.Included, ExcludedReason: r.ExcludedReason}
	}

	step := domain.DataFlowStep{
		StepOrder:   stage.Order,
		StepType:    stage.Type,
		Rows:        rows,
		Columns:     append([]string{}, st.columns...),
		Description: stage.Description,
	}
	if stats != nil {
		step.Stats = *stats
	} else {
		step.Stats = domain.ComputeStats(rows)
	}
	return step
}
