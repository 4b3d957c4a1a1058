package query

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/starford/zest/internal/index"
	"github.com/starford/zest/internal/models"
)

// Evaluator runs one query against one index snapshot. Postings and the set of
// all notes are fetched at most once per evaluation.
//
// NOT is a complement against every indexed note, so a NOT-heavy query costs
// time proportional to the corpus regardless of how selective it is.
type Evaluator struct {
	r        index.Reader
	universe *roaring.Bitmap
	postings map[index.Term]index.Posting
}

// NewEvaluator creates an evaluator reading from r.
func NewEvaluator(r index.Reader) *Evaluator {
	return &Evaluator{r: r, postings: make(map[index.Term]index.Posting)}
}

// Evaluate returns the notes matching n, highest score first, ties by note id.
func Evaluate(r index.Reader, n Node) ([]models.Hit, error) {
	return NewEvaluator(r).Run(n)
}

// Run evaluates n and ranks the result.
func (e *Evaluator) Run(n Node) ([]models.Hit, error) {
	docs, err := e.eval(n)
	if err != nil {
		return nil, err
	}

	scoring := scoringTerms(n)
	hits := make([]models.Hit, 0, docs.GetCardinality())
	it := docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		id, ok, err := e.r.NoteID(doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var score float64
		for _, t := range scoring {
			p, err := e.posting(t)
			if err != nil {
				return nil, err
			}
			score += float64(p.Freqs[doc]) * t.Field.Boost()
		}
		hits = append(hits, models.Hit{ID: id, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

// eval computes the matching document set bottom-up. Returned bitmaps are
// owned by the caller.
func (e *Evaluator) eval(n Node) (*roaring.Bitmap, error) {
	switch node := n.(type) {
	case *TermNode:
		p, err := e.posting(index.Term{Field: node.Field, Token: node.Token})
		if err != nil {
			return nil, err
		}
		return roaring.BitmapOf(p.Docs()...), nil

	case *AndNode:
		if len(node.Children) == 0 {
			u, err := e.all()
			if err != nil {
				return nil, err
			}
			return u.Clone(), nil
		}
		acc, err := e.eval(node.Children[0])
		if err != nil {
			return nil, err
		}
		for _, c := range node.Children[1:] {
			if acc.IsEmpty() {
				break
			}
			next, err := e.eval(c)
			if err != nil {
				return nil, err
			}
			acc.And(next)
		}
		return acc, nil

	case *OrNode:
		acc := roaring.New()
		for _, c := range node.Children {
			next, err := e.eval(c)
			if err != nil {
				return nil, err
			}
			acc.Or(next)
		}
		return acc, nil

	case *NotNode:
		child, err := e.eval(node.Child)
		if err != nil {
			return nil, err
		}
		u, err := e.all()
		if err != nil {
			return nil, err
		}
		out := u.Clone()
		out.AndNot(child)
		return out, nil

	default:
		return nil, fmt.Errorf("query: unknown node %T", n)
	}
}

// all returns the cached set of every indexed note.
func (e *Evaluator) all() (*roaring.Bitmap, error) {
	if e.universe != nil {
		return e.universe, nil
	}
	docs, err := e.r.AllDocs()
	if err != nil {
		return nil, err
	}
	e.universe = roaring.BitmapOf(docs...)
	return e.universe, nil
}

func (e *Evaluator) posting(t index.Term) (index.Posting, error) {
	if p, ok := e.postings[t]; ok {
		return p, nil
	}
	p, err := e.r.Lookup(t.Field, t.Token)
	if err != nil {
		return p, err
	}
	e.postings[t] = p
	return p, nil
}

// scoringTerms collects the distinct scoring terms that are not negated.
func scoringTerms(n Node) []index.Term {
	seen := make(map[index.Term]struct{})
	var out []index.Term
	var walk func(Node, bool)
	walk = func(n Node, negated bool) {
		switch node := n.(type) {
		case *TermNode:
			t := index.Term{Field: node.Field, Token: node.Token}
			if negated || node.Field.Boost() == 0 {
				return
			}
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		case *AndNode:
			for _, c := range node.Children {
				walk(c, negated)
			}
		case *OrNode:
			for _, c := range node.Children {
				walk(c, negated)
			}
		case *NotNode:
			walk(node.Child, !negated)
		}
	}
	walk(n, false)
	return out
}
