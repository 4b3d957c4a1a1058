// Package query parses the boolean field-scoped query language and evaluates
// queries against an index snapshot.
//
// Precedence, loosest to tightest: OR, then AND (explicit or implied by
// juxtaposition), then NOT. So `a OR b c` is `a OR (b AND c)` and
// `NOT a b` is `(NOT a) AND b`.
package query

import (
	"strconv"
	"strings"

	"github.com/starford/zest/internal/schema"
)

// Node is a query expression tree node: *TermNode, *AndNode, *OrNode or *NotNode.
type Node interface {
	node()
	String() string
}

// TermNode matches notes holding Token in Field.
type TermNode struct {
	Field schema.Field
	Token string
}

// AndNode matches the intersection of its children. With no children it
// matches every note.
type AndNode struct {
	Children []Node
}

// OrNode matches the union of its children. With no children it matches nothing.
type OrNode struct {
	Children []Node
}

// NotNode matches every note its child does not.
type NotNode struct {
	Child Node
}

func (*TermNode) node() {}
func (*AndNode) node()  {}
func (*OrNode) node()   {}
func (*NotNode) node()  {}

func (n *TermNode) String() string {
	tok := n.Token
	if tok == "" || strings.ContainsAny(tok, " \t\n\"()") {
		tok = strconv.Quote(tok)
	}
	return string(n.Field) + ":" + tok
}

func (n *AndNode) String() string {
	if len(n.Children) == 0 {
		return "*"
	}
	return join(n.Children, " AND ")
}

func (n *OrNode) String() string {
	if len(n.Children) == 0 {
		return "()"
	}
	return join(n.Children, " OR ")
}

func (n *NotNode) String() string {
	return "NOT " + n.Child.String()
}

func join(children []Node, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// and builds a conjunction, collapsing the single-child case.
func and(children ...Node) Node {
	if len(children) == 1 {
		return children[0]
	}
	return &AndNode{Children: children}
}

// or builds a disjunction, collapsing the single-child case.
func or(children ...Node) Node {
	if len(children) == 1 {
		return children[0]
	}
	return &OrNode{Children: children}
}
