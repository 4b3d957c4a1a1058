package query

import (
	"fmt"

	"github.com/starford/zest/internal/apperr"
	"github.com/starford/zest/internal/schema"
)

// SyntaxError reports a malformed query. Pos is the byte offset of the
// offending token; Field is set for unknown field prefixes.
type SyntaxError struct {
	Query string
	Pos   int
	Field string
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("query: %s at position %d", e.Msg, e.Pos)
}

// Is makes errors.Is(err, apperr.ErrQuerySyntax) match.
func (e *SyntaxError) Is(target error) bool { return target == apperr.ErrQuerySyntax }

// Parser is a recursive-descent parser over Lexer tokens.
type Parser struct {
	input string
	lexer *Lexer
	curr  Token
}

// Parse parses a query string into an expression tree.
func Parse(input string) (Node, error) {
	p := &Parser{input: input, lexer: NewLexer(input)}
	p.advance()

	if p.curr.Type == TokenEOF {
		return nil, p.errorf(p.curr.Pos, "empty query")
	}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	switch p.curr.Type {
	case TokenEOF:
		return n, nil
	case TokenRParen:
		return nil, p.errorf(p.curr.Pos, "unbalanced parenthesis: unexpected ')'")
	default:
		return nil, p.errorf(p.curr.Pos, "unexpected %v", p.curr.Type)
	}
}

func (p *Parser) advance() {
	p.curr = p.lexer.NextToken()
}

func (p *Parser) errorf(pos int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Query: p.input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// startsClause reports whether the current token can begin an operand.
func (p *Parser) startsClause() bool {
	switch p.curr.Type {
	case TokenTerm, TokenStar, TokenNot, TokenLParen, TokenError:
		return true
	}
	return false
}

// parseOr parses OR chains (lowest precedence).
func (p *Parser) parseOr() (Node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.curr.Type == TokenOr {
		op := p.curr
		p.advance()
		if !p.startsClause() {
			return nil, p.errorf(op.Pos, "dangling OR: expected a clause, got %v", p.curr.Type)
		}
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	return or(children...), nil
}

// parseAnd parses explicit and implicit AND chains.
func (p *Parser) parseAnd() (Node, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for {
		if p.curr.Type == TokenAnd {
			op := p.curr
			p.advance()
			if !p.startsClause() {
				return nil, p.errorf(op.Pos, "dangling AND: expected a clause, got %v", p.curr.Type)
			}
		} else if !p.startsClause() {
			break
		}
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	return and(children...), nil
}

// parseUnary parses NOT (highest precedence).
func (p *Parser) parseUnary() (Node, error) {
	if p.curr.Type != TokenNot {
		return p.parsePrimary()
	}
	op := p.curr
	p.advance()
	if !p.startsClause() {
		return nil, p.errorf(op.Pos, "dangling NOT: expected a clause, got %v", p.curr.Type)
	}
	child, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &NotNode{Child: child}, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	tok := p.curr
	switch tok.Type {
	case TokenLParen:
		p.advance()
		if p.curr.Type == TokenRParen {
			return nil, p.errorf(p.curr.Pos, "empty parentheses")
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.curr.Type != TokenRParen {
			return nil, p.errorf(tok.Pos, "unbalanced parenthesis: '(' is never closed")
		}
		p.advance()
		return inner, nil
	case TokenStar:
		p.advance()
		return &AndNode{}, nil
	case TokenTerm:
		p.advance()
		return p.clause(tok)
	case TokenError:
		return nil, p.errorf(tok.Pos, "%s", tok.Value)
	case TokenRParen:
		return nil, p.errorf(tok.Pos, "unbalanced parenthesis: unexpected ')'")
	case TokenEOF:
		return nil, p.errorf(tok.Pos, "unexpected end of query")
	default:
		return nil, p.errorf(tok.Pos, "unexpected %v", tok.Type)
	}
}

// clause turns a term token into a subtree.
func (p *Parser) clause(tok Token) (Node, error) {
	if tok.Field == "" {
		return bareTerm(tok.Value), nil
	}

	f, err := schema.Lookup(tok.Field)
	if err != nil {
		e := p.errorf(tok.Pos, "unknown field %q", tok.Field)
		e.Field = tok.Field
		return nil, e
	}
	if tok.Value == "" {
		return nil, p.errorf(tok.ValuePos, "missing term after %q", tok.Field+":")
	}
	if f.Exact() {
		return &TermNode{Field: f, Token: tok.Value}, nil
	}

	tokens := schema.Tokenize(f, tok.Value)
	if len(tokens) == 0 {
		return &OrNode{}, nil
	}
	terms := make([]Node, len(tokens))
	for i, t := range tokens {
		terms[i] = &TermNode{Field: f, Token: t}
	}
	return and(terms...), nil
}

// bareTerm searches every default field for each word of value.
func bareTerm(value string) Node {
	words := schema.Words(value)
	if len(words) == 0 {
		return &OrNode{}
	}
	defaults := schema.Defaults()
	perWord := make([]Node, len(words))
	for i, w := range words {
		alts := make([]Node, len(defaults))
		for j, f := range defaults {
			alts[j] = &TermNode{Field: f, Token: w}
		}
		perWord[i] = or(alts...)
	}
	return and(perWord...)
}
