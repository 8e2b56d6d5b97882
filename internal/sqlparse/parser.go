package sqlparse

import (
	"fmt"
	"strconv"
	"strings"
)

// StructuredQuery is the clause-level decomposition of one SELECT statement.
// Every clause keeps its verbatim source substring in Raw; structured fields
// carry only what the planner needs. Absent clauses are nil.
type StructuredQuery struct {
	Raw     string
	Select  SelectClause
	From    FromClause
	Joins   []JoinClause
	Where   *ExprClause
	GroupBy *GroupByClause
	Having  *ExprClause
	OrderBy *OrderByClause
	Limit   *IntClause
	Offset  *IntClause
}

// SelectClause is the SELECT list.
type SelectClause struct {
	Distinct bool
	Items    []SelectItem
	Raw      string
}

// Star reports whether the whole select list is a bare `*`.
func (s SelectClause) Star() bool {
	return len(s.Items) == 1 && s.Items[0].Star
}

// SelectItem is one item of the SELECT list.
type SelectItem struct {
	Expr      string // verbatim expression text, alias stripped
	Alias     string // AS alias or bare trailing alias
	Star      bool   // *
	TableStar string // t.* (table or alias name)
}

// OutputName returns the column name this item produces in the result.
func (i SelectItem) OutputName() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Expr
}

// FromClause names the base table.
type FromClause struct {
	Table string
	Alias string
	Raw   string
}

// Binding returns the name the SQL text binds this table to.
func (f FromClause) Binding() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Table
}

// JoinClause is one JOIN in textual order.
type JoinClause struct {
	Type  string // INNER, LEFT, RIGHT, FULL, CROSS
	Table string
	Alias string
	On    string   // verbatim ON predicate, empty for CROSS
	Using []string // USING (col, ...) column names
	Raw   string
}

// Binding returns the name the SQL text binds the joined table to.
func (j JoinClause) Binding() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// ExprClause is a predicate clause (WHERE, HAVING).
type ExprClause struct {
	Expr string // verbatim predicate text, keyword stripped
	Raw  string // including the keyword
}

// GroupByClause is the GROUP BY column list.
type GroupByClause struct {
	Columns []string // verbatim column expressions
	Raw     string
}

// SortKey is one ORDER BY key.
type SortKey struct {
	Expr string
	Desc bool
}

// OrderByClause is the ORDER BY key list.
type OrderByClause struct {
	Keys []SortKey
	Raw  string
}

// IntClause is a LIMIT or OFFSET clause.
type IntClause struct {
	N   int
	Raw string
}

// Parser splits a SELECT statement into clauses. Construct one per call;
// there is no shared state between parses.
type Parser struct {
	lexer  *Lexer
	input  string
	token  Token
	peek   Token
	errors []error
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	p := &Parser{lexer: NewLexer(sql), input: sql}
	p.next()
	p.next()
	return p
}

// Parse splits a single SELECT statement into its clauses.
// Anything that is not exactly one SELECT statement is an error.
func Parse(sql string) (*StructuredQuery, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return nil, fmt.Errorf("empty SQL")
	}

	p := NewParser(trimmed)
	q := p.parseSelect()
	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}

	// Trailing semicolon is fine; anything after it is not.
	p.match(TOKEN_SEMICOLON)
	if p.token.Type != TOKEN_EOF {
		return nil, fmt.Errorf("parse error: unexpected %q after end of statement", p.token.Literal)
	}

	q.Raw = trimmed
	return q, nil
}

func (p *Parser) parseSelect() *StructuredQuery {
	if p.token.Type != TOKEN_SELECT {
		p.errorf("expected a SELECT statement, got %q", p.token.Literal)
		return nil
	}

	q := &StructuredQuery{}
	selStart := p.token.Pos
	p.next()
	q.Select.Distinct = p.match(TOKEN_DISTINCT)

	for {
		item, end := p.parseSelectItem()
		q.Select.Items = append(q.Select.Items, item)
		q.Select.Raw = strings.TrimSpace(p.input[selStart:end])
		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	if len(p.errors) > 0 {
		return q
	}
	if !p.check(TOKEN_FROM) {
		p.errorf("missing FROM clause")
		return q
	}

	// FROM and comma-separated extra sources (treated as CROSS joins).
	fromStart := p.token.Pos
	p.next()
	q.From.Table, q.From.Alias = p.parseTableRef()
	q.From.Raw = strings.TrimSpace(p.input[fromStart:p.token.Pos])

	for {
		switch {
		case p.check(TOKEN_COMMA):
			p.next()
			start := p.token.Pos
			table, alias := p.parseTableRef()
			q.Joins = append(q.Joins, JoinClause{
				Type:  "CROSS",
				Table: table,
				Alias: alias,
				Raw:   strings.TrimSpace(p.input[start:p.token.Pos]),
			})
			continue
		case p.isJoinStart():
			q.Joins = append(q.Joins, p.parseJoin())
			continue
		}
		break
	}

	if p.check(TOKEN_WHERE) {
		q.Where = p.parsePredicateClause(whereStops)
	}

	if p.check(TOKEN_GROUP) {
		start := p.token.Pos
		p.next()
		if !p.expect(TOKEN_BY) {
			return q
		}
		gb := &GroupByClause{}
		for {
			expr, _ := p.exprText(groupStops)
			if expr == "" {
				p.errorf("empty GROUP BY expression")
				return q
			}
			gb.Columns = append(gb.Columns, expr)
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		gb.Raw = strings.TrimSpace(p.input[start:p.token.Pos])
		q.GroupBy = gb
	}

	if p.check(TOKEN_HAVING) {
		q.Having = p.parsePredicateClause(havingStops)
	}

	if p.check(TOKEN_ORDER) {
		start := p.token.Pos
		p.next()
		if !p.expect(TOKEN_BY) {
			return q
		}
		ob := &OrderByClause{}
		for {
			expr, _ := p.exprText(orderStops)
			if expr == "" {
				p.errorf("empty ORDER BY expression")
				return q
			}
			key := SortKey{Expr: expr}
			if p.match(TOKEN_DESC) {
				key.Desc = true
			} else {
				p.match(TOKEN_ASC)
			}
			ob.Keys = append(ob.Keys, key)
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		ob.Raw = strings.TrimSpace(p.input[start:p.token.Pos])
		q.OrderBy = ob
	}

	// LIMIT and OFFSET, in either textual order.
	for p.check(TOKEN_LIMIT) || p.check(TOKEN_OFFSET) {
		kind := p.token.Type
		start := p.token.Pos
		p.next()
		if !p.check(TOKEN_NUMBER) {
			p.errorf("expected integer after %s, got %q", tokenNames[kind], p.token.Literal)
			return q
		}
		n, err := strconv.Atoi(p.token.Literal)
		if err != nil {
			p.errorf("%s value %q is not an integer", tokenNames[kind], p.token.Literal)
			return q
		}
		p.next()
		clause := &IntClause{N: n, Raw: strings.TrimSpace(p.input[start:p.token.Pos])}
		if kind == TOKEN_LIMIT {
			q.Limit = clause
		} else {
			q.Offset = clause
		}
	}

	return q
}

// parseSelectItem consumes one select-list item and returns it with the byte
// offset just past the item.
func (p *Parser) parseSelectItem() (SelectItem, int) {
	start := p.token.Pos
	var toks []Token
	depth := 0
	for {
		t := p.token.Type
		if t == TOKEN_EOF || t == TOKEN_SEMICOLON {
			break
		}
		if depth == 0 && (t == TOKEN_COMMA || t == TOKEN_FROM) {
			break
		}
		if t == TOKEN_LPAREN {
			depth++
		}
		if t == TOKEN_RPAREN {
			depth--
		}
		toks = append(toks, p.token)
		p.next()
	}
	end := p.token.Pos

	if len(toks) == 0 {
		p.errorf("empty select list item")
		return SelectItem{}, end
	}

	// Bare star and table-qualified star.
	if len(toks) == 1 && toks[0].Type == TOKEN_STAR {
		return SelectItem{Star: true, Expr: "*"}, end
	}
	if len(toks) == 3 && toks[0].Type == TOKEN_IDENT && toks[1].Type == TOKEN_DOT && toks[2].Type == TOKEN_STAR {
		return SelectItem{TableStar: toks[0].Literal, Expr: strings.TrimSpace(p.input[start:end])}, end
	}

	// Explicit AS alias at depth 0.
	parenDepth := 0
	for i, t := range toks {
		switch t.Type {
		case TOKEN_LPAREN:
			parenDepth++
		case TOKEN_RPAREN:
			parenDepth--
		case TOKEN_AS:
			if parenDepth == 0 && i == len(toks)-2 && toks[i+1].Type == TOKEN_IDENT {
				return SelectItem{
					Expr:  strings.TrimSpace(p.input[start:t.Pos]),
					Alias: toks[i+1].Literal,
				}, end
			}
		}
	}

	// Bare trailing alias: `expr alias` where the alias directly follows a
	// complete primary (identifier, literal, star, or closing paren).
	if n := len(toks); n >= 2 && toks[n-1].Type == TOKEN_IDENT {
		switch toks[n-2].Type {
		case TOKEN_IDENT, TOKEN_NUMBER, TOKEN_STRING, TOKEN_RPAREN, TOKEN_STAR:
			return SelectItem{
				Expr:  strings.TrimSpace(p.input[start:toks[n-1].Pos]),
				Alias: toks[n-1].Literal,
			}, end
		}
	}

	return SelectItem{Expr: strings.TrimSpace(p.input[start:end])}, end
}

// parseTableRef consumes `name[.name] [AS alias | alias]`.
func (p *Parser) parseTableRef() (name, alias string) {
	if !p.check(TOKEN_IDENT) {
		p.errorf("expected table name, got %q", p.token.Literal)
		return "", ""
	}
	name = p.token.Literal
	p.next()
	if p.check(TOKEN_DOT) && p.peek.Type == TOKEN_IDENT {
		p.next()
		name += "." + p.token.Literal
		p.next()
	}
	if p.match(TOKEN_AS) {
		if !p.check(TOKEN_IDENT) {
			p.errorf("expected alias after AS, got %q", p.token.Literal)
			return name, ""
		}
		alias = p.token.Literal
		p.next()
	} else if p.check(TOKEN_IDENT) {
		alias = p.token.Literal
		p.next()
	}
	return name, alias
}

// isJoinStart reports whether the current token begins a JOIN clause.
func (p *Parser) isJoinStart() bool {
	switch p.token.Type {
	case TOKEN_JOIN, TOKEN_INNER, TOKEN_LEFT, TOKEN_RIGHT, TOKEN_FULL, TOKEN_CROSS:
		return true
	}
	return false
}

// parseJoin consumes one JOIN clause including its ON or USING condition.
func (p *Parser) parseJoin() JoinClause {
	start := p.token.Pos
	j := JoinClause{Type: "INNER"}

	switch p.token.Type {
	case TOKEN_LEFT, TOKEN_RIGHT, TOKEN_FULL:
		j.Type = tokenNames[p.token.Type]
		p.next()
		p.match(TOKEN_OUTER)
	case TOKEN_INNER:
		p.next()
	case TOKEN_CROSS:
		j.Type = "CROSS"
		p.next()
	}
	if !p.expect(TOKEN_JOIN) {
		return j
	}

	j.Table, j.Alias = p.parseTableRef()

	switch {
	case p.check(TOKEN_ON):
		p.next()
		j.On, _ = p.exprText(joinStops)
		if j.On == "" {
			p.errorf("empty ON condition")
		}
	case p.check(TOKEN_USING):
		p.next()
		if !p.expect(TOKEN_LPAREN) {
			return j
		}
		for {
			if !p.check(TOKEN_IDENT) {
				p.errorf("expected column name in USING, got %q", p.token.Literal)
				return j
			}
			j.Using = append(j.Using, p.token.Literal)
			p.next()
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
		p.expect(TOKEN_RPAREN)
	default:
		if j.Type != "CROSS" {
			p.errorf("%s JOIN requires an ON or USING condition", j.Type)
		}
	}

	j.Raw = strings.TrimSpace(p.input[start:p.token.Pos])
	return j
}

// parsePredicateClause consumes `KEYWORD <expr>` and keeps both spans.
func (p *Parser) parsePredicateClause(stops map[TokenType]bool) *ExprClause {
	start := p.token.Pos
	p.next()
	expr, _ := p.exprText(stops)
	if expr == "" {
		p.errorf("empty predicate")
		return nil
	}
	return &ExprClause{
		Expr: expr,
		Raw:  strings.TrimSpace(p.input[start:p.token.Pos]),
	}
}

// Stop sets for expression consumption, per clause.
var (
	joinStops = map[TokenType]bool{
		TOKEN_JOIN: true, TOKEN_INNER: true, TOKEN_LEFT: true, TOKEN_RIGHT: true,
		TOKEN_FULL: true, TOKEN_CROSS: true, TOKEN_WHERE: true, TOKEN_GROUP: true,
		TOKEN_HAVING: true, TOKEN_ORDER: true, TOKEN_LIMIT: true, TOKEN_OFFSET: true,
	}
	whereStops = map[TokenType]bool{
		TOKEN_GROUP: true, TOKEN_HAVING: true, TOKEN_ORDER: true,
		TOKEN_LIMIT: true, TOKEN_OFFSET: true,
	}
	groupStops = map[TokenType]bool{
		TOKEN_COMMA: true, TOKEN_HAVING: true, TOKEN_ORDER: true,
		TOKEN_LIMIT: true, TOKEN_OFFSET: true,
	}
	havingStops = map[TokenType]bool{
		TOKEN_ORDER: true, TOKEN_LIMIT: true, TOKEN_OFFSET: true,
	}
	orderStops = map[TokenType]bool{
		TOKEN_COMMA: true, TOKEN_ASC: true, TOKEN_DESC: true,
		TOKEN_LIMIT: true, TOKEN_OFFSET: true,
	}
)

// exprText consumes tokens until EOF, a semicolon, or a depth-0 stop token,
// and returns the verbatim source span. The stop token is not consumed.
func (p *Parser) exprText(stops map[TokenType]bool) (string, int) {
	start := p.token.Pos
	depth := 0
	for {
		t := p.token.Type
		if t == TOKEN_EOF || t == TOKEN_SEMICOLON {
			break
		}
		if depth == 0 && stops[t] {
			break
		}
		if t == TOKEN_LPAREN {
			depth++
		}
		if t == TOKEN_RPAREN {
			depth--
		}
		p.next()
	}
	end := p.token.Pos
	return strings.TrimSpace(p.input[start:end]), end
}

// === Token helpers ===

func (p *Parser) next() {
	p.token = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) check(t TokenType) bool {
	return p.token.Type == t
}

func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(t TokenType) bool {
	if p.check(t) {
		p.next()
		return true
	}
	p.errorf("unexpected token %q, expected %s", p.token.Literal, t)
	return false
}

func (p *Parser) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Errorf("parse error: "+format, args...))
}
