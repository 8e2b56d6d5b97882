// Package engine adapts an embedded DuckDB connection to the narrow
// capability the simulator consumes: table scans, direct query execution,
// and VALUES-based probes for predicate and expression evaluation.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"sqlflow/internal/domain"
)

// DuckDB implements domain.Engine over a *sql.DB opened with the duckdb
// driver. One instance wraps one session's database.
type DuckDB struct {
	db *sql.DB
}

// Compile-time check.
var _ domain.Engine = (*DuckDB)(nil)

// New creates a DuckDB engine adapter for the given connection.
func New(db *sql.DB) *DuckDB {
	return &DuckDB{db: db}
}

// ScanTable returns the full contents of a table in storage order.
func (e *DuckDB) ScanTable(ctx context.Context, table string) (*domain.TableData, error) {
	td, err := e.Query(ctx, "SELECT * FROM "+quoteQualified(table))
	if err != nil {
		return nil, fmt.Errorf("scan table %q: %w", table, err)
	}
	td.TableName = table
	return td, nil
}

// Query executes a SELECT and returns its result set.
func (e *DuckDB) Query(ctx context.Context, sqlText string) (*domain.TableData, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return scanRows(rows)
}

// Exec executes DDL/DML and reports the affected tables.
func (e *DuckDB) Exec(ctx context.Context, sqlText string) (*domain.ExecResult, error) {
	res, err := e.db.ExecContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}

	result := &domain.ExecResult{
		Message:        "OK",
		AffectedTables: statementTables(sqlText),
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		result.Message = fmt.Sprintf("%d row(s) affected", n)
	}
	return result, nil
}

// EvalPredicate evaluates a boolean predicate against the given relations.
func (e *DuckDB) EvalPredicate(ctx context.Context, predicate string, rels []domain.ProbeRelation, groupBy []string) (bool, error) {
	probe, args := buildProbe(
		fmt.Sprintf("CASE WHEN (%s) THEN true ELSE false END", predicate),
		rels, groupBy,
	)

	var ok sql.NullBool
	if err := e.db.QueryRowContext(ctx, probe, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("evaluate predicate: %w", err)
	}
	return ok.Valid && ok.Bool, nil
}

// EvalExprs evaluates expressions against the given relations.
func (e *DuckDB) EvalExprs(ctx context.Context, exprs []string, rels []domain.ProbeRelation, groupBy []string) ([]any, error) {
	wrapped := make([]string, len(exprs))
	for i, ex := range exprs {
		wrapped[i] = "(" + ex + ")"
	}
	probe, args := buildProbe(strings.Join(wrapped, ", "), rels, groupBy)

	rows, err := e.db.QueryContext(ctx, probe, args...)
	if err != nil {
		return nil, fmt.Errorf("evaluate expressions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("expression probe returned no rows")
	}
	vals := make([]any, len(exprs))
	ptrs := make([]any, len(exprs))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

// Tables lists the tables and columns in the main schema.
func (e *DuckDB) Tables(ctx context.Context) ([]domain.TableSchema, error) {
	const q = `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'main'
		ORDER BY table_name, ordinal_position`

	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var (
		schemas []domain.TableSchema
		current *domain.TableSchema
	)
	for rows.Next() {
		var table, column, typ string
		if err := rows.Scan(&table, &column, &typ); err != nil {
			return nil, err
		}
		if current == nil || current.Name != table {
			schemas = append(schemas, domain.TableSchema{Name: table})
			current = &schemas[len(schemas)-1]
		}
		current.Columns = append(current.Columns, domain.ColumnSchema{Name: column, Type: typ})
	}
	return schemas, rows.Err()
}

// buildProbe renders `SELECT <selectList> FROM <rels...> [GROUP BY ...]`
// where each relation is a VALUES derived table bound to the name the SQL
// text refers to. Values travel as placeholder args so the engine applies
// its own typing and coercion.
func buildProbe(selectList string, rels []domain.ProbeRelation, groupBy []string) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT ")
	sb.WriteString(selectList)

	if len(rels) > 0 {
		sb.WriteString(" FROM ")
		for ri, rel := range rels {
			if ri > 0 {
				sb.WriteString(", ")
			}
			if len(rel.Rows) == 0 {
				// Empty relation: VALUES needs at least one row, so emit an
				// empty derived table with the right arity instead.
				sb.WriteString("(SELECT ")
				for i := range rel.Columns {
					if i > 0 {
						sb.WriteString(", ")
					}
					sb.WriteString("NULL")
				}
				sb.WriteString(" WHERE FALSE) AS ")
				sb.WriteString(quoteIdent(rel.Name))
				sb.WriteString("(")
				for i, c := range rel.Columns {
					if i > 0 {
						sb.WriteString(", ")
					}
					sb.WriteString(quoteIdent(c))
				}
				sb.WriteString(")")
				continue
			}
			sb.WriteString("(VALUES ")
			for i, row := range rel.Rows {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString("(")
				for j, v := range row {
					if j > 0 {
						sb.WriteString(", ")
					}
					sb.WriteString("?")
					args = append(args, v)
				}
				sb.WriteString(")")
			}
			sb.WriteString(") AS ")
			sb.WriteString(quoteIdent(rel.Name))
			sb.WriteString("(")
			for i, c := range rel.Columns {
				if i > 0 {
					sb.WriteString(", ")
				}
				sb.WriteString(quoteIdent(c))
			}
			sb.WriteString(")")
		}
	}

	if len(groupBy) > 0 {
		// Entries are probe relation column names, not SQL text: quoting
		// keeps dotted working-set keys from binding as table references.
		sb.WriteString(" GROUP BY ")
		for i, g := range groupBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteIdent(g))
		}
	}

	return sb.String(), args
}

// scanRows converts *sql.Rows into a TableData, mapping []byte to string for
// JSON serialization.
func scanRows(rows *sql.Rows) (*domain.TableData, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	td := &domain.TableData{Columns: cols, Rows: []domain.Row{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(domain.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		td.Rows = append(td.Rows, row)
	}
	return td, rows.Err()
}

// quoteIdent quotes a single SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteQualified quotes a possibly schema-qualified table name.
func quoteQualified(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// statementTables extracts the table names a DDL/DML statement touches.
// Best-effort: it looks for identifiers following TABLE, INTO, and UPDATE
// keywords, which covers CREATE/DROP/ALTER TABLE, INSERT INTO, UPDATE, and
// DELETE FROM.
func statementTables(sqlText string) []string {
	fields := strings.Fields(sqlText)
	var tables []string
	seen := map[string]bool{}
	for i := 0; i < len(fields)-1; i++ {
		switch strings.ToUpper(fields[i]) {
		case "TABLE", "INTO", "UPDATE":
			name := strings.Trim(fields[i+1], `"(),;`)
			if name != "" && !seen[name] {
				seen[name] = true
				tables = append(tables, name)
			}
		case "DELETE":
			if i+2 < len(fields) && strings.EqualFold(fields[i+1], "FROM") {
				name := strings.Trim(fields[i+2], `"(),;`)
				if name != "" && !seen[name] {
					seen[name] = true
					tables = append(tables, name)
				}
			}
		}
	}
	return tables
}
