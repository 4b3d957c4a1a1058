package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType is the kind of a lexer token.
type TokenType int

const (
	TokenEOF    TokenType = iota
	TokenTerm             // bare or field-prefixed term
	TokenStar             // *
	TokenAnd              // AND
	TokenOr               // OR
	TokenNot              // NOT
	TokenLParen           // (
	TokenRParen           // )
	TokenError
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of query"
	case TokenTerm:
		return "term"
	case TokenStar:
		return "'*'"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	default:
		return "error"
	}
}

// Token is one lexeme. For TokenTerm, Field is the prefix before ':' (empty for
// bare terms) and ValuePos is where the term text starts.
type Token struct {
	Type     TokenType
	Value    string
	Field    string
	Quoted   bool
	Pos      int
	ValuePos int
}

// Lexer tokenizes a query string. Positions are byte offsets.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a lexer for input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	switch l.input[l.pos] {
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Pos: start}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Pos: start}
	case '"':
		value, ok := l.scanQuoted()
		if !ok {
			return Token{Type: TokenError, Value: "unterminated quote", Pos: start}
		}
		return Token{Type: TokenTerm, Value: value, Quoted: true, Pos: start, ValuePos: start}
	}

	word := l.scanWord()
	switch word {
	case "AND":
		return Token{Type: TokenAnd, Value: word, Pos: start}
	case "OR":
		return Token{Type: TokenOr, Value: word, Pos: start}
	case "NOT":
		return Token{Type: TokenNot, Value: word, Pos: start}
	case "*":
		return Token{Type: TokenStar, Value: word, Pos: start}
	}

	if i := strings.IndexByte(word, ':'); i > 0 && isFieldName(word[:i]) {
		tok := Token{Type: TokenTerm, Field: word[:i], Value: word[i+1:], Pos: start, ValuePos: start + i + 1}
		if tok.Value == "" && l.pos < len(l.input) && l.input[l.pos] == '"' {
			qstart := l.pos
			value, ok := l.scanQuoted()
			if !ok {
				return Token{Type: TokenError, Value: "unterminated quote", Pos: qstart}
			}
			tok.Value, tok.Quoted = value, true
		}
		return tok
	}
	return Token{Type: TokenTerm, Value: word, Pos: start, ValuePos: start}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) {
		r, w := utf8.DecodeRuneInString(l.input[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += w
	}
}

// scanWord reads up to whitespace, a parenthesis or a quote.
func (l *Lexer) scanWord() string {
	start := l.pos
	for l.pos < len(l.input) {
		r, w := utf8.DecodeRuneInString(l.input[l.pos:])
		if r == '(' || r == ')' || r == '"' || unicode.IsSpace(r) {
			break
		}
		l.pos += w
	}
	return l.input[start:l.pos]
}

// scanQuoted reads a double-quoted string starting at the opening quote.
// Backslash escapes the next byte.
func (l *Lexer) scanQuoted() (string, bool) {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case ch == '\\' && l.pos+1 < len(l.input):
			sb.WriteByte(l.input[l.pos+1])
			l.pos += 2
		case ch == '"':
			l.pos++
			return sb.String(), true
		default:
			sb.WriteByte(ch)
			l.pos++
		}
	}
	return "", false
}

func isFieldName(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}
