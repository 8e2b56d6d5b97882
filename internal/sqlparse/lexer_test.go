package sqlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(input string) []Token {
	lx := NewLexer(input)
	var toks []Token
	for {
		tok := lx.NextToken()
		toks = append(toks, tok)
		if tok.Type == TOKEN_EOF {
			return toks
		}
	}
}

func TestLexer_BasicTokens(t *testing.T) {
	t.Parallel()

	toks := lexAll("SELECT name, age FROM users WHERE age >= 21")

	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	assert.Equal(t, []TokenType{
		TOKEN_SELECT, TOKEN_IDENT, TOKEN_COMMA, TOKEN_IDENT,
		TOKEN_FROM, TOKEN_IDENT, TOKEN_WHERE, TOKEN_IDENT,
		TOKEN_GE, TOKEN_NUMBER, TOKEN_EOF,
	}, types)
}

func TestLexer_Positions(t *testing.T) {
	t.Parallel()

	input := "SELECT name FROM users"
	toks := lexAll(input)

	// Every token's Pos must point at its first character, so clause spans
	// can be recovered from the original input.
	require.Len(t, toks, 5)
	assert.Equal(t, 0, toks[0].Pos)
	assert.Equal(t, "name", input[toks[1].Pos:toks[1].Pos+len("name")])
	assert.Equal(t, "FROM", input[toks[2].Pos:toks[2].Pos+len("FROM")])
	assert.Equal(t, "users", input[toks[3].Pos:toks[3].Pos+len("users")])
	assert.Equal(t, len(input), toks[4].Pos)
}

func TestLexer_Operators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  TokenType
	}{
		{"=", TOKEN_EQ},
		{"!=", TOKEN_NE},
		{"<>", TOKEN_NE},
		{"<", TOKEN_LT},
		{"<=", TOKEN_LE},
		{">", TOKEN_GT},
		{">=", TOKEN_GE},
		{"||", TOKEN_DPIPE},
		{"%", TOKEN_MOD},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			toks := lexAll(tt.input)
			require.Len(t, toks, 2)
			assert.Equal(t, tt.want, toks[0].Type)
		})
	}
}

func TestLexer_StringLiteral(t *testing.T) {
	t.Parallel()

	toks := lexAll("name = 'O''Brien'")
	require.Len(t, toks, 4)
	assert.Equal(t, TOKEN_STRING, toks[2].Type)
	assert.Equal(t, "O'Brien", toks[2].Literal)
}

func TestLexer_QuotedIdentifier(t *testing.T) {
	t.Parallel()

	toks := lexAll(`SELECT "first name" FROM t`)
	require.Len(t, toks, 5)
	assert.Equal(t, TOKEN_IDENT, toks[1].Type)
	assert.Equal(t, "first name", toks[1].Literal)
}

func TestLexer_Numbers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"42", "42"},
		{"3.14", "3.14"},
		{"1e10", "1e10"},
		{"2.5e-3", "2.5e-3"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			toks := lexAll(tt.input)
			require.Len(t, toks, 2)
			assert.Equal(t, TOKEN_NUMBER, toks[0].Type)
			assert.Equal(t, tt.want, toks[0].Literal)
		})
	}
}

func TestLexer_Comments(t *testing.T) {
	t.Parallel()

	toks := lexAll("SELECT -- comment\n name /* block */ FROM t")
	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	assert.Equal(t, []TokenType{TOKEN_SELECT, TOKEN_IDENT, TOKEN_FROM, TOKEN_IDENT, TOKEN_EOF}, types)
}

func TestLexer_KeywordsCaseInsensitive(t *testing.T) {
	t.Parallel()

	toks := lexAll("select From wHeRe")
	assert.Equal(t, TOKEN_SELECT, toks[0].Type)
	assert.Equal(t, TOKEN_FROM, toks[1].Type)
	assert.Equal(t, TOKEN_WHERE, toks[2].Type)
	// Literal keeps the original casing.
	assert.Equal(t, "select", toks[0].Literal)
}
