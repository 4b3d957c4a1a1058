// Package schema defines the fixed set of indexed fields and how each one is tokenized.
package schema

import (
	"fmt"
	"strings"
	"unicode"
)

// Field identifies one indexed field.
type Field string

const (
	File    Field = "file"
	Tag     Field = "tag"
	Ref     Field = "ref"
	Title   Field = "title"
	Content Field = "content"
)

// TitleBoost multiplies term frequencies of title matches when scoring.
const TitleBoost = 2.0

var fields = []Field{File, Tag, Ref, Title, Content}

// All returns every field in declaration order.
func All() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// Lookup resolves a field name as written in a query prefix.
func Lookup(name string) (Field, error) {
	f := Field(strings.ToLower(name))
	for _, known := range fields {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", name)
}

// Exact reports whether the field matches the literal stored value only.
func (f Field) Exact() bool {
	return f == File || f == Tag || f == Ref
}

// DefaultQueryable reports whether bare query terms apply to the field.
func (f Field) DefaultQueryable() bool {
	return f == Title || f == Content
}

// Defaults returns the fields searched by unprefixed terms.
func Defaults() []Field {
	var out []Field
	for _, f := range fields {
		if f.DefaultQueryable() {
			out = append(out, f)
		}
	}
	return out
}

// Boost returns the scoring multiplier for a field. Exact fields do not score.
func (f Field) Boost() float64 {
	switch f {
	case Title:
		return TitleBoost
	case Content:
		return 1
	default:
		return 0
	}
}

func (f Field) String() string { return string(f) }

// Tokenize splits value into the index tokens for field f.
//
// Exact fields yield the value unchanged. Text fields are lowercased and split
// on every rune that is neither a letter nor a digit; there is no stop-word list.
func Tokenize(f Field, value string) []string {
	if f.Exact() {
		if value == "" {
			return nil
		}
		return []string{value}
	}
	return Words(value)
}

// Words is the natural-language tokenizer used by title and content.
func Words(value string) []string {
	words := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil
	}
	return words
}

// Frequencies counts the tokens of value for field f.
func Frequencies(f Field, values ...string) map[string]int {
	out := make(map[string]int)
	for _, v := range values {
		for _, tok := range Tokenize(f, v) {
			out[tok]++
		}
	}
	return out
}
