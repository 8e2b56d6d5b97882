// Package sqlparse splits a single SELECT statement into its syntactic
// clauses while preserving the exact source text of each clause.
//
// It is not a full SQL parser: expression bodies (predicates, select items,
// sort keys) are kept as verbatim token spans and handed to the live engine
// for evaluation. The parser only understands enough structure to locate
// clause boundaries, aliases, and join shapes.
package sqlparse

import "fmt"

// TokenType represents the type of a lexical token.
type TokenType int

// TOKEN_EOF and friends enumerate all token types produced by the lexer.
const (
	TOKEN_EOF     TokenType = iota // end of input
	TOKEN_ILLEGAL                  // unexpected character

	TOKEN_IDENT  // identifier
	TOKEN_NUMBER // 123, 45.67, 1e10
	TOKEN_STRING // 'hello'

	TOKEN_PLUS      // +
	TOKEN_MINUS     // -
	TOKEN_STAR      // *
	TOKEN_SLASH     // /
	TOKEN_MOD       // %
	TOKEN_DPIPE     // ||
	TOKEN_EQ        // =
	TOKEN_NE        // != or <>
	TOKEN_LT        // <
	TOKEN_GT        // >
	TOKEN_LE        // <=
	TOKEN_GE        // >=
	TOKEN_DOT       // .
	TOKEN_COMMA     // ,
	TOKEN_SEMICOLON // ;
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )

	// TOKEN_AND and below are SQL keywords (alphabetical).
	TOKEN_AND
	TOKEN_AS
	TOKEN_ASC
	TOKEN_BETWEEN
	TOKEN_BY
	TOKEN_CROSS
	TOKEN_DESC
	TOKEN_DISTINCT
	TOKEN_FALSE
	TOKEN_FROM
	TOKEN_FULL
	TOKEN_GROUP
	TOKEN_HAVING
	TOKEN_IN
	TOKEN_INNER
	TOKEN_IS
	TOKEN_JOIN
	TOKEN_LEFT
	TOKEN_LIKE
	TOKEN_LIMIT
	TOKEN_NOT
	TOKEN_NULL
	TOKEN_OFFSET
	TOKEN_ON
	TOKEN_OR
	TOKEN_ORDER
	TOKEN_OUTER
	TOKEN_RIGHT
	TOKEN_SELECT
	TOKEN_TRUE
	TOKEN_USING
	TOKEN_WHERE
)

// String returns a human-readable representation of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TOKEN(%d)", t)
}

// tokenNames maps token types to their string representations.
var tokenNames = map[TokenType]string{
	TOKEN_EOF:     "EOF",
	TOKEN_ILLEGAL: "ILLEGAL",
	TOKEN_IDENT:   "IDENT",
	TOKEN_NUMBER:  "NUMBER",
	TOKEN_STRING:  "STRING",

	TOKEN_PLUS:      "+",
	TOKEN_MINUS:     "-",
	TOKEN_STAR:      "*",
	TOKEN_SLASH:     "/",
	TOKEN_MOD:       "%",
	TOKEN_DPIPE:     "||",
	TOKEN_EQ:        "=",
	TOKEN_NE:        "!=",
	TOKEN_LT:        "<",
	TOKEN_GT:        ">",
	TOKEN_LE:        "<=",
	TOKEN_GE:        ">=",
	TOKEN_DOT:       ".",
	TOKEN_COMMA:     ",",
	TOKEN_SEMICOLON: ";",
	TOKEN_LPAREN:    "(",
	TOKEN_RPAREN:    ")",

	TOKEN_AND:      "AND",
	TOKEN_AS:       "AS",
	TOKEN_ASC:      "ASC",
	TOKEN_BETWEEN:  "BETWEEN",
	TOKEN_BY:       "BY",
	TOKEN_CROSS:    "CROSS",
	TOKEN_DESC:     "DESC",
	TOKEN_DISTINCT: "DISTINCT",
	TOKEN_FALSE:    "FALSE",
	TOKEN_FROM:     "FROM",
	TOKEN_FULL:     "FULL",
	TOKEN_GROUP:    "GROUP",
	TOKEN_HAVING:   "HAVING",
	TOKEN_IN:       "IN",
	TOKEN_INNER:    "INNER",
	TOKEN_IS:       "IS",
	TOKEN_JOIN:     "JOIN",
	TOKEN_LEFT:     "LEFT",
	TOKEN_LIKE:     "LIKE",
	TOKEN_LIMIT:    "LIMIT",
	TOKEN_NOT:      "NOT",
	TOKEN_NULL:     "NULL",
	TOKEN_OFFSET:   "OFFSET",
	TOKEN_ON:       "ON",
	TOKEN_OR:       "OR",
	TOKEN_ORDER:    "ORDER",
	TOKEN_OUTER:    "OUTER",
	TOKEN_RIGHT:    "RIGHT",
	TOKEN_SELECT:   "SELECT",
	TOKEN_TRUE:     "TRUE",
	TOKEN_USING:    "USING",
	TOKEN_WHERE:    "WHERE",
}

// keywords maps lowercase keyword strings to their token types.
var keywords = map[string]TokenType{
	"and":      TOKEN_AND,
	"as":       TOKEN_AS,
	"asc":      TOKEN_ASC,
	"between":  TOKEN_BETWEEN,
	"by":       TOKEN_BY,
	"cross":    TOKEN_CROSS,
	"desc":     TOKEN_DESC,
	"distinct": TOKEN_DISTINCT,
	"false":    TOKEN_FALSE,
	"from":     TOKEN_FROM,
	"full":     TOKEN_FULL,
	"group":    TOKEN_GROUP,
	"having":   TOKEN_HAVING,
	"in":       TOKEN_IN,
	"inner":    TOKEN_INNER,
	"is":       TOKEN_IS,
	"join":     TOKEN_JOIN,
	"left":     TOKEN_LEFT,
	"like":     TOKEN_LIKE,
	"limit":    TOKEN_LIMIT,
	"not":      TOKEN_NOT,
	"null":     TOKEN_NULL,
	"offset":   TOKEN_OFFSET,
	"on":       TOKEN_ON,
	"or":       TOKEN_OR,
	"order":    TOKEN_ORDER,
	"outer":    TOKEN_OUTER,
	"right":    TOKEN_RIGHT,
	"select":   TOKEN_SELECT,
	"true":     TOKEN_TRUE,
	"using":    TOKEN_USING,
	"where":    TOKEN_WHERE,
}

// lookupKeyword returns the token type for the given lowercase identifier.
// Returns TOKEN_IDENT if it's not a keyword.
func lookupKeyword(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TOKEN_IDENT
}

// Token represents a lexical token with its literal value and the byte
// offset of its first character in the original input. Pos is what lets the
// parser recover verbatim clause substrings.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}
