// Package parser turns raw note files into drafts: front-matter tags, title,
// plain-text content and raw link destinations.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/starford/zest/internal/models"
)

const delim = "---"

var (
	yamlLineRe = regexp.MustCompile(`line (\d+)`)
	bom        = []byte{0xEF, 0xBB, 0xBF}
	md         = goldmark.New()
)

// ParseError reports a note that could not be read or whose front matter is malformed.
// Line is 1-indexed and 0 when unknown.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type frontMatter struct {
	Tags []string `yaml:"tags"`
}

// ParseFile reads and parses the note at path.
func ParseFile(path string) (*models.Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse parses raw note bytes. path is only used to label errors and the draft.
func Parse(path string, data []byte) (*models.Draft, error) {
	fm, body, err := splitFrontMatter(path, bytes.TrimPrefix(data, bom))
	if err != nil {
		return nil, err
	}

	title, content, links := walkBody(body)

	return &models.Draft{
		Path:    path,
		Tags:    cleanTags(fm.Tags),
		Title:   title,
		Content: content,
		Links:   links,
	}, nil
}

// splitFrontMatter separates the YAML block delimited by lines that are exactly
// "---" from the markdown body. Front matter is only recognised on line 1.
func splitFrontMatter(path string, data []byte) (frontMatter, []byte, error) {
	var fm frontMatter

	first, rest, found := bytes.Cut(data, []byte("\n"))
	if !isDelim(first) {
		return fm, data, nil
	}
	if !found {
		return fm, nil, &ParseError{Path: path, Line: 1, Err: errors.New("unterminated front matter")}
	}

	var block, body []byte
	closed := false
	for len(rest) > 0 {
		line, next, _ := bytes.Cut(rest, []byte("\n"))
		if isDelim(line) {
			body = next
			closed = true
			break
		}
		block = append(block, line...)
		block = append(block, '\n')
		rest = next
	}
	if !closed {
		return fm, nil, &ParseError{Path: path, Line: 1, Err: errors.New("unterminated front matter")}
	}

	if err := yaml.Unmarshal(block, &fm); err != nil {
		return fm, nil, &ParseError{Path: path, Line: yamlErrorLine(err), Err: err}
	}
	return fm, body, nil
}

func isDelim(line []byte) bool {
	return string(bytes.TrimSuffix(line, []byte("\r"))) == delim
}

// yamlErrorLine maps a yaml.v3 error back to a file line, accounting for the
// opening delimiter.
func yamlErrorLine(err error) int {
	m := yamlLineRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return n + 1
}

func cleanTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// walkBody renders the body as plain text and collects the first H1 and every
// link destination.
func walkBody(src []byte) (title string, content string, links []string) {
	doc := md.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	var titleNode ast.Node

	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				newline()
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == 1 && titleNode == nil {
				titleNode = node
			}
		case *ast.Text:
			sb.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.Link:
			links = append(links, string(node.Destination))
		case *ast.AutoLink:
			links = append(links, string(node.URL(src)))
			sb.Write(node.Label(src))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	if titleNode != nil {
		title = inlineText(titleNode, src)
	}
	return title, strings.TrimSpace(sb.String()), links
}

// inlineText concatenates the text of every descendant of n.
func inlineText(n ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := c.(type) {
		case *ast.Text:
			sb.Write(node.Segment.Value(src))
			if node.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(node.Value)
		case *ast.AutoLink:
			sb.Write(node.Label(src))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
