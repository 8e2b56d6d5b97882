// Package plan maps a structured SELECT query onto the fixed logical
// execution order: FROM, JOIN(s), WHERE, GROUP BY, HAVING, SELECT, DISTINCT,
// ORDER BY, LIMIT, OFFSET. Only stages actually present in the query are
// emitted, with dense 1-based order numbers.
package plan

import (
	"strings"

	"sqlflow/internal/domain"
	"sqlflow/internal/sqlparse"
)

// Stage is one planned step of the logical execution order.
type Stage struct {
	Order       int
	Type        domain.StepType
	Clause      string // verbatim source text of the clause
	Description string
	Op          Op
}

// Op carries the stage-specific operands. Each stage type has its own
// concrete struct rather than a shared bag of optional fields.
type Op interface {
	op()
}

// ScanOp loads the base table.
type ScanOp struct {
	Table   string
	Binding string // alias if present, else table name
}

// JoinOp combines the working set with one more table.
type JoinOp struct {
	Join  sqlparse.JoinClause
	Index int // position among the query's joins, 0-based
}

// FilterOp evaluates a row-level predicate (WHERE).
type FilterOp struct {
	Predicate string
}

// GroupOp collapses rows into one representative per group key.
type GroupOp struct {
	Columns []string
}

// HavingOp evaluates an aggregate predicate per group. Aggregates lists the
// aggregate calls found in the predicate so exclusion reasons can report the
// computed value.
type HavingOp struct {
	Predicate  string
	Aggregates []string
}

// ProjectOp projects rows to the selected columns. HasAggregates is true
// when the select list contains aggregate calls, which collapses an
// ungrouped query to a single row.
type ProjectOp struct {
	Items         []sqlparse.SelectItem
	HasAggregates bool
}

// DistinctOp removes duplicate projected rows.
type DistinctOp struct{}

// SortOp reorders rows by the sort keys.
type SortOp struct {
	Keys []sqlparse.SortKey
}

// LimitOp caps the window of surviving rows. It carries the query's OFFSET
// too: the window is [Offset, Offset+N) regardless of which of the two
// stages marks a given row.
type LimitOp struct {
	N         int
	Offset    int
	HasOffset bool
}

// OffsetOp skips the first N surviving rows.
type OffsetOp struct {
	N        int
	Limit    int
	HasLimit bool
}

func (ScanOp) op()     {}
func (JoinOp) op()     {}
func (FilterOp) op()   {}
func (GroupOp) op()    {}
func (HavingOp) op()   {}
func (ProjectOp) op()  {}
func (DistinctOp) op() {}
func (SortOp) op()     {}
func (LimitOp) op()    {}
func (OffsetOp) op()   {}

// Build maps the structured query onto the fixed logical order.
func Build(q *sqlparse.StructuredQuery) []Stage {
	var stages []Stage
	add := func(t domain.StepType, clause string, op Op) {
		stages = append(stages, Stage{
			Order:       len(stages) + 1,
			Type:        t,
			Clause:      clause,
			Description: domain.StepDescriptions[t],
			Op:          op,
		})
	}

	add(domain.StepFrom, q.From.Raw, ScanOp{Table: q.From.Table, Binding: q.From.Binding()})

	for i, j := range q.Joins {
		add(domain.StepJoin, j.Raw, JoinOp{Join: j, Index: i})
	}

	if q.Where != nil {
		add(domain.StepWhere, q.Where.Raw, FilterOp{Predicate: q.Where.Expr})
	}

	if q.GroupBy != nil {
		add(domain.StepGroupBy, q.GroupBy.Raw, GroupOp{Columns: q.GroupBy.Columns})
	}

	if q.Having != nil {
		add(domain.StepHaving, q.Having.Raw, HavingOp{
			Predicate:  q.Having.Expr,
			Aggregates: ExtractAggregates(q.Having.Expr),
		})
	}

	add(domain.StepSelect, q.Select.Raw, ProjectOp{
		Items:         q.Select.Items,
		HasAggregates: selectHasAggregates(q.Select.Items),
	})

	if q.Select.Distinct {
		add(domain.StepDistinct, "DISTINCT", DistinctOp{})
	}

	if q.OrderBy != nil {
		add(domain.StepOrderBy, q.OrderBy.Raw, SortOp{Keys: q.OrderBy.Keys})
	}

	if q.Limit != nil {
		op := LimitOp{N: q.Limit.N}
		if q.Offset != nil {
			op.Offset = q.Offset.N
			op.HasOffset = true
		}
		add(domain.StepLimit, q.Limit.Raw, op)
	}

	if q.Offset != nil {
		op := OffsetOp{N: q.Offset.N}
		if q.Limit != nil {
			op.Limit = q.Limit.N
			op.HasLimit = true
		}
		add(domain.StepOffset, q.Offset.Raw, op)
	}

	return stages
}

// aggregateFuncs are the aggregate function names recognized when scanning
// predicate and select-list text.
var aggregateFuncs = map[string]bool{
	"count": true,
	"sum":   true,
	"avg":   true,
	"min":   true,
	"max":   true,
}

// ExtractAggregates returns the verbatim aggregate call expressions found in
// the given SQL text, in order of appearance.
func ExtractAggregates(expr string) []string {
	var aggs []string
	lx := sqlparse.NewLexer(expr)
	tok := lx.NextToken()
	for tok.Type != sqlparse.TOKEN_EOF {
		if tok.Type == sqlparse.TOKEN_IDENT && aggregateFuncs[strings.ToLower(tok.Literal)] {
			start := tok.Pos
			next := lx.NextToken()
			if next.Type != sqlparse.TOKEN_LPAREN {
				tok = next
				continue
			}
			depth := 1
			end := next.Pos + 1
			for depth > 0 {
				t := lx.NextToken()
				if t.Type == sqlparse.TOKEN_EOF {
					break
				}
				switch t.Type {
				case sqlparse.TOKEN_LPAREN:
					depth++
				case sqlparse.TOKEN_RPAREN:
					depth--
				}
				end = t.Pos + len(t.Literal)
			}
			aggs = append(aggs, strings.TrimSpace(expr[start:end]))
		}
		tok = lx.NextToken()
	}
	return aggs
}

func selectHasAggregates(items []sqlparse.SelectItem) bool {
	for _, it := range items {
		if it.Star || it.TableStar != "" {
			continue
		}
		if len(ExtractAggregates(it.Expr)) > 0 {
			return true
		}
	}
	return false
}
