package lang

import "testing"

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{
			input:    "http_requests_total",
			expected: []TokenType{TokenIdentifier, TokenEOF},
		},
		{
			input:    "sum(metric)",
			expected: []TokenType{TokenSum, TokenLeftParen, TokenIdentifier, TokenRightParen, TokenEOF},
		},
		{
			input:    "rate(metric[5m])",
			expected: []TokenType{TokenIdentifier, TokenLeftParen, TokenIdentifier, TokenLeftBracket, TokenDuration, TokenRightBracket, TokenRightParen, TokenEOF},
		},
		{
			input:    `metric{label="value"}`,
			expected: []TokenType{TokenIdentifier, TokenLeftBrace, TokenIdentifier, TokenEqual, TokenString, TokenRightBrace, TokenEOF},
		},
		{
			input:    "a + b",
			expected: []TokenType{TokenIdentifier, TokenPlus, TokenIdentifier, TokenEOF},
		},
		{
			input:    "a and b",
			expected: []TokenType{TokenIdentifier, TokenAnd, TokenIdentifier, TokenEOF},
		},
		{
			input:    "1.5e10",
			expected: []TokenType{TokenNumber, TokenEOF},
		},
		{
			input:    `metric{label=~"val.*", other!="x"}`,
			expected: []TokenType{TokenIdentifier, TokenLeftBrace, TokenIdentifier, TokenMatch, TokenString, TokenComma, TokenIdentifier, TokenNotEqual, TokenString, TokenRightBrace, TokenEOF},
		},
	}

	for _, tt := range tests {
		lexer := NewLexer(tt.input)
		for i, want := range tt.expected {
			tok, err := lexer.NextToken()
			if err != nil {
				t.Fatalf("%q: unexpected lex error: %v", tt.input, err)
			}
			if tok.Type != want {
				t.Errorf("%q token[%d]: expected %v, got %v (literal %q)", tt.input, i, want, tok.Type, tok.Literal)
			}
		}
	}
}

func TestLexerRejectsUnterminatedString(t *testing.T) {
	lexer := NewLexer(`metric{label="unterminated`)
	for i := 0; i < 10; i++ {
		if _, err := lexer.NextToken(); err != nil {
			return
		}
	}
	t.Fatalf("expected a lexing error for an unterminated string")
}
