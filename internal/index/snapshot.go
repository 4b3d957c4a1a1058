package index

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/starford/zest/internal/schema"
)

// Posting is the set of notes containing a term, keyed by document number,
// with the term frequency in each note.
type Posting struct {
	Term
	Freqs map[uint32]int
}

// Docs returns the posting's document numbers in ascending order.
func (p Posting) Docs() []uint32 {
	out := make([]uint32, 0, len(p.Freqs))
	for d := range p.Freqs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stats summarises index size.
type Stats struct {
	Notes    int `json:"notes"`
	Terms    int `json:"terms"`
	Postings int `json:"postings"`
}

// Snapshot is a read-only view of one committed index state. It must be
// closed; it is not safe for concurrent use.
type Snapshot struct {
	ctx context.Context
	tx  *sql.Tx

	// loaded lazily from the notes table
	ids    map[uint32]string
	mtimes map[string]time.Time
}

// Close releases the snapshot.
func (s *Snapshot) Close() error {
	return s.tx.Rollback()
}

// Lookup returns the posting for (field, token). Absent terms give an empty
// posting, not an error.
func (s *Snapshot) Lookup(field schema.Field, token string) (Posting, error) {
	p := Posting{Term: Term{Field: field, Token: token}, Freqs: make(map[uint32]int)}
	rows, err := s.tx.QueryContext(s.ctx, `SELECT doc, freq FROM postings WHERE field = ? AND token = ?`, string(field), token)
	if err != nil {
		return p, fmt.Errorf("index: lookup %s:%s: %w", field, token, err)
	}
	defer rows.Close()
	for rows.Next() {
		var doc int64
		var freq int
		if err := rows.Scan(&doc, &freq); err != nil {
			return p, err
		}
		p.Freqs[uint32(doc)] = freq
	}
	return p, rows.Err()
}

func (s *Snapshot) load() error {
	if s.ids != nil {
		return nil
	}
	rows, err := s.tx.QueryContext(s.ctx, `SELECT doc, id, mtime FROM notes`)
	if err != nil {
		return fmt.Errorf("index: load notes: %w", err)
	}
	defer rows.Close()

	ids := make(map[uint32]string)
	mtimes := make(map[string]time.Time)
	for rows.Next() {
		var doc, mtime int64
		var id string
		if err := rows.Scan(&doc, &id, &mtime); err != nil {
			return err
		}
		ids[uint32(doc)] = id
		mtimes[id] = time.Unix(0, mtime)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.ids, s.mtimes = ids, mtimes
	return nil
}

// AllDocs returns the document number of every indexed note.
func (s *Snapshot) AllDocs() ([]uint32, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(s.ids))
	for d := range s.ids {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// NoteID maps a document number back to its note id.
func (s *Snapshot) NoteID(doc uint32) (string, bool, error) {
	if err := s.load(); err != nil {
		return "", false, err
	}
	id, ok := s.ids[doc]
	return id, ok, nil
}

// Mtimes returns the last indexed modification time of every note.
func (s *Snapshot) Mtimes() (map[string]time.Time, error) {
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(s.mtimes))
	for id, t := range s.mtimes {
		out[id] = t
	}
	return out, nil
}

// Terms returns every term the note contributed, using the reverse mapping.
func (s *Snapshot) Terms(id string) ([]TermFreq, error) {
	rows, err := s.tx.QueryContext(s.ctx, `
		SELECT p.field, p.token, p.freq
		FROM postings p
		JOIN notes n ON n.doc = p.doc
		WHERE n.id = ?
		ORDER BY p.field, p.token
	`, id)
	if err != nil {
		return nil, fmt.Errorf("index: terms %s: %w", id, err)
	}
	defer rows.Close()

	var out []TermFreq
	for rows.Next() {
		var tf TermFreq
		var field string
		if err := rows.Scan(&field, &tf.Token, &tf.Freq); err != nil {
			return nil, err
		}
		tf.Field = schema.Field(field)
		out = append(out, tf)
	}
	return out, rows.Err()
}

// Stats counts notes, distinct terms and postings.
func (s *Snapshot) Stats() (Stats, error) {
	var st Stats
	err := s.tx.QueryRowContext(s.ctx, `
		SELECT
			(SELECT count(*) FROM notes),
			(SELECT count(*) FROM (SELECT DISTINCT field, token FROM postings)),
			(SELECT count(*) FROM postings)
	`).Scan(&st.Notes, &st.Terms, &st.Postings)
	if err != nil {
		return st, fmt.Errorf("index: stats: %w", err)
	}
	return st, nil
}
