package simulate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"sqlflow/internal/domain"
	"sqlflow/internal/plan"
	"sqlflow/internal/sqlparse"
)

// project computes the SELECT stage: output columns and, where the select
// list contains expressions or aggregates, engine-evaluated values merged
// into the row data. Inclusion state never changes here except for the
// implicit collapse of an ungrouped aggregate query.
func (s *Simulator) project(ctx context.Context, st *state, stage plan.Stage, op plan.ProjectOp) (*domain.FlowStats, error) {
	defer func() { st.groups = nil }()

	// Bare `SELECT *` keeps the working set as-is.
	if len(op.Items) == 1 && op.Items[0].Star {
		return nil, nil
	}

	// Ungrouped aggregate query: the whole included set collapses to one row.
	if op.HasAggregates && st.groups == nil {
		return s.projectImplicitGroup(ctx, st, stage, op)
	}

	type projItem struct {
		name    string
		expr    string
		local   bool // resolvable from row data without the engine
	}

	var (
		outCols []string
		items   []projItem
	)
	for _, it := range op.Items {
		switch {
		case it.Star:
			outCols = append(outCols, st.columns...)
		case it.TableStar != "":
			src := findSource(st.sources, it.TableStar)
			if src == nil {
				return nil, domain.ErrExecutionClause(stage.Clause, "unknown table %q in select list", it.TableStar)
			}
			outCols = append(outCols, src.keys...)
		default:
			name := outputName(it)
			_, isRef := columnRefPath(it.Expr)
			items = append(items, projItem{name: name, expr: it.Expr, local: isRef})
			outCols = append(outCols, name)
		}
	}

	// Expressions the engine must evaluate, in one probe per row (or group).
	var engineExprs []string
	for _, it := range items {
		if !it.local {
			engineExprs = append(engineExprs, it.expr)
		}
	}

	for i := range st.rows {
		r := &st.rows[i]

		var vals []any
		if len(engineExprs) > 0 && r.Included {
			var (
				rels    []domain.ProbeRelation
				groupBy []string
				err     error
			)
			if st.groups != nil {
				rels = []domain.ProbeRelation{groupRelation(st, st.groups[i])}
				groupBy = st.groupBy
			} else {
				rels = relsForRow(st.sources, r.Data)
			}
			vals, err = s.engine.EvalExprs(ctx, engineExprs, rels, groupBy)
			if err != nil {
				return nil, domain.ErrExecutionClause(stage.Clause, "cannot evaluate select list: %v", err)
			}
		}

		data := make(domain.Row, len(r.Data)+len(items))
		for k, v := range r.Data {
			data[k] = v
		}
		vi := 0
		for _, it := range items {
			if it.local {
				if v, ok := lookupValue(st, r.Data, it.expr); ok {
					data[it.name] = v
				} else if r.Included {
					return nil, domain.ErrExecutionClause(stage.Clause, "unknown column %q in select list", it.expr)
				}
				continue
			}
			if r.Included {
				data[it.name] = vals[vi]
			}
			vi++
		}
		r.Data = data
	}

	st.columns = outCols
	return nil, nil
}

// projectImplicitGroup handles `SELECT COUNT(*) ...` without GROUP BY: all
// included rows form one implicit group and the physical set becomes a
// single aggregate row.
func (s *Simulator) projectImplicitGroup(ctx context.Context, st *state, stage plan.Stage, op plan.ProjectOp) (*domain.FlowStats, error) {
	var members []domain.Row
	for _, r := range st.rows {
		if r.Included {
			members = append(members, r.Data)
		}
	}

	var (
		outCols []string
		exprs   []string
	)
	for _, it := range op.Items {
		if it.Star || it.TableStar != "" {
			return nil, domain.ErrExecutionClause(stage.Clause, "cannot mix * with aggregates without GROUP BY")
		}
		outCols = append(outCols, outputName(it))
		exprs = append(exprs, it.Expr)
	}

	rel := groupRelation(st, members)
	vals, err := s.engine.EvalExprs(ctx, exprs, []domain.ProbeRelation{rel}, nil)
	if err != nil {
		return nil, domain.ErrExecutionClause(stage.Clause, "cannot evaluate select list: %v", err)
	}

	data := make(domain.Row, len(outCols))
	for i, c := range outCols {
		data[c] = vals[i]
	}

	entering := len(members)
	st.rows = []domain.RowState{{Data: data, Included: true}}
	st.columns = outCols

	stats := &domain.FlowStats{TotalRows: entering, IncludedRows: 1, ExcludedRows: entering - 1}
	if entering == 0 {
		stats = &domain.FlowStats{TotalRows: 1, IncludedRows: 1}
	}
	return stats, nil
}

// distinct drops duplicate included rows, keeping the first occurrence.
// The stage stats keep the pre-dedupe population visible.
func (s *Simulator) distinct(st *state) *domain.FlowStats {
	entering := len(st.rows)
	seen := map[string]bool{}
	kept := st.rows[:0:0]
	for _, r := range st.rows {
		if !r.Included {
			kept = append(kept, r)
			continue
		}
		key := rowKey(r.Data, st.columns)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, r)
	}
	st.rows = kept

	stats := domain.ComputeStats(kept)
	stats.TotalRows = entering
	stats.ExcludedRows = entering - stats.IncludedRows
	return &stats
}

// sortRows stably re-orders the included rows by the sort keys. Excluded
// rows have no defined sort position and are appended after, as a display
// convention.
func (s *Simulator) sortRows(st *state, stage plan.Stage, op plan.SortOp) error {
	var included, excluded []domain.RowState
	for _, r := range st.rows {
		if r.Included {
			included = append(included, r)
		} else {
			excluded = append(excluded, r)
		}
	}

	// Resolve every key for every row up front so unknown columns surface
	// as errors instead of silently sorting on nils.
	for _, key := range op.Keys {
		for _, r := range included {
			if _, ok := sortValue(st, r.Data, key.Expr); !ok {
				return domain.ErrExecutionClause(stage.Clause, "unknown column %q in ORDER BY", key.Expr)
			}
		}
	}

	sort.SliceStable(included, func(i, j int) bool {
		for _, key := range op.Keys {
			a, _ := sortValue(st, included[i].Data, key.Expr)
			b, _ := sortValue(st, included[j].Data, key.Expr)
			c := compareValues(a, b)
			if c == 0 {
				continue
			}
			// Nulls sort last regardless of direction.
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			if key.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	st.rows = append(included, excluded...)
	return nil
}

// === Working-set helpers ===

// assignKeys gives every source column its key in the combined row: the bare
// name when unique across sources, otherwise namespaced by the binding.
func assignKeys(sources []source) {
	counts := map[string]int{}
	for _, src := range sources {
		for _, c := range src.cols {
			counts[strings.ToLower(c)]++
		}
	}
	for i := range sources {
		src := &sources[i]
		src.keys = make([]string, len(src.cols))
		for j, c := range src.cols {
			if counts[strings.ToLower(c)] > 1 {
				src.keys[j] = src.binding + "." + c
			} else {
				src.keys[j] = c
			}
		}
	}
}

func allKeys(sources []source) []string {
	var keys []string
	for _, src := range sources {
		keys = append(keys, src.keys...)
	}
	return keys
}

func findSource(sources []source, binding string) *source {
	for i := range sources {
		if strings.EqualFold(sources[i].binding, binding) {
			return &sources[i]
		}
	}
	return nil
}

// relsForRow splits one combined row back into one single-row relation per
// source, so qualified references in predicates resolve exactly as they
// would against the real tables.
func relsForRow(sources []source, data domain.Row) []domain.ProbeRelation {
	rels := make([]domain.ProbeRelation, len(sources))
	for i, src := range sources {
		vals := make([]any, len(src.cols))
		for j, key := range src.keys {
			vals[j] = data[key]
		}
		rels[i] = domain.ProbeRelation{Name: src.binding, Columns: src.cols, Rows: [][]any{vals}}
	}
	return rels
}

// groupRelation packs one group's member rows into a single relation for
// aggregate probes. With a single source the relation keeps its binding so
// qualified references still resolve; combined rows fall back to their
// working-set keys.
func groupRelation(st *state, members []domain.Row) domain.ProbeRelation {
	name := "grouped"
	cols := st.columns
	if len(st.sources) == 1 {
		name = st.sources[0].binding
		cols = st.sources[0].keys
	}
	rel := domain.ProbeRelation{Name: name, Columns: cols}
	for _, m := range members {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = m[c]
		}
		rel.Rows = append(rel.Rows, vals)
	}
	return rel
}

// resolveKey maps a column reference onto its working-set column: exact
// match first, then alias-qualified through the source list, then unique
// bare name across sources.
func resolveKey(st *state, ref string) (string, bool) {
	for _, c := range st.columns {
		if strings.EqualFold(c, ref) {
			return c, true
		}
	}
	path, ok := columnRefPath(ref)
	if !ok {
		return "", false
	}
	if len(path) == 2 {
		if src := findSource(st.sources, path[0]); src != nil {
			for i, c := range src.cols {
				if strings.EqualFold(c, path[1]) {
					return src.keys[i], true
				}
			}
		}
		return "", false
	}
	var (
		found bool
		key   string
	)
	for _, src := range st.sources {
		for i, c := range src.cols {
			if strings.EqualFold(c, path[0]) {
				if found {
					return "", false // ambiguous
				}
				found = true
				key = src.keys[i]
			}
		}
	}
	return key, found
}

// lookupValue resolves a column reference against a working row: exact key
// first, then alias-qualified, then unique bare name across sources.
func lookupValue(st *state, data domain.Row, ref string) (any, bool) {
	if v, ok := data[ref]; ok {
		return v, true
	}
	path, ok := columnRefPath(ref)
	if !ok {
		return nil, false
	}
	if len(path) == 2 {
		if src := findSource(st.sources, path[0]); src != nil {
			for i, c := range src.cols {
				if strings.EqualFold(c, path[1]) {
					v, ok := data[src.keys[i]]
					return v, ok
				}
			}
		}
		return nil, false
	}
	// Bare name: accept when exactly one source has the column.
	var (
		found bool
		val   any
	)
	for _, src := range st.sources {
		for i, c := range src.cols {
			if strings.EqualFold(c, path[0]) {
				if found {
					return nil, false // ambiguous
				}
				found = true
				val = data[src.keys[i]]
			}
		}
	}
	return val, found
}

// sortValue resolves an ORDER BY key: projected output column first, then
// any working-set column.
func sortValue(st *state, data domain.Row, ref string) (any, bool) {
	if v, ok := data[ref]; ok {
		return v, true
	}
	return lookupValue(st, data, ref)
}

// columnRefPath reports whether expr is a plain (possibly qualified) column
// reference and returns its parts.
func columnRefPath(expr string) ([]string, bool) {
	lx := sqlparse.NewLexer(expr)
	first := lx.NextToken()
	if first.Type != sqlparse.TOKEN_IDENT {
		return nil, false
	}
	second := lx.NextToken()
	if second.Type == sqlparse.TOKEN_EOF {
		return []string{first.Literal}, true
	}
	if second.Type != sqlparse.TOKEN_DOT {
		return nil, false
	}
	third := lx.NextToken()
	if third.Type != sqlparse.TOKEN_IDENT {
		return nil, false
	}
	if lx.NextToken().Type != sqlparse.TOKEN_EOF {
		return nil, false
	}
	return []string{first.Literal, third.Literal}, true
}

// outputName returns the result column name a select item produces.
func outputName(it sqlparse.SelectItem) string {
	if it.Alias != "" {
		return it.Alias
	}
	if path, ok := columnRefPath(it.Expr); ok {
		return path[len(path)-1]
	}
	return it.Expr
}

// rowKey renders the projected values of a row as a dedupe key.
func rowKey(data domain.Row, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%v", data[c])
	}
	return strings.Join(parts, "\x1f")
}

// compareValues orders two SQL values: numbers numerically, strings
// lexicographically, times chronologically. Nil handling is left to the
// caller since null placement depends on sort direction policy.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case !ab && bb:
				return -1
			case ab && !bb:
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
