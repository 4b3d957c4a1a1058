package index

import (
	"context"
	"time"

	"github.com/starford/zest/internal/models"
	"github.com/starford/zest/internal/schema"
)

// Reader is the read surface the query evaluator depends on.
type Reader interface {
	Lookup(field schema.Field, token string) (Posting, error)
	AllDocs() ([]uint32, error)
	NoteID(doc uint32) (string, bool, error)
}

// Writer is the write surface the indexing pipeline depends on.
type Writer interface {
	Upsert(ctx context.Context, n *models.Note) error
	Remove(ctx context.Context, id string) error
	Commit() error
	Rollback() error
}

// Verify the concrete types satisfy the interfaces at compile time.
var (
	_ Reader = (*Snapshot)(nil)
	_ Writer = (*Batch)(nil)
)

// Lookup returns note id -> frequency for (field, token) in the committed state.
func (s *Store) Lookup(ctx context.Context, field schema.Field, token string) (map[string]int, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	p, err := snap.Lookup(field, token)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(p.Freqs))
	for doc, freq := range p.Freqs {
		id, ok, err := snap.NoteID(doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out[id] = freq
		}
	}
	return out, nil
}

// Mtimes returns the committed note id -> last indexed mtime mapping.
func (s *Store) Mtimes(ctx context.Context) (map[string]time.Time, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer snap.Close()
	return snap.Mtimes()
}

// Terms returns the committed terms owned by a note.
func (s *Store) Terms(ctx context.Context, id string) ([]TermFreq, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer snap.Close()
	return snap.Terms(id)
}

// Stats returns committed index statistics.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer snap.Close()
	return snap.Stats()
}
