package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/starford/zest/internal/models"
	"github.com/starford/zest/internal/schema"
)

// PersistenceError reports a single upsert or remove that failed to write.
// The batch stays usable; the note keeps its previously committed postings.
type PersistenceError struct {
	NoteID string
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("index: %s %s: %v", e.Op, e.NoteID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Term is the index key: a token within a field.
type Term struct {
	Field schema.Field
	Token string
}

// Batch is one write transaction. Nothing it does is visible to readers until
// Commit; Rollback (or a crash) leaves the last committed state.
type Batch struct {
	store *Store
	tx    *sql.Tx
	ins   *sql.Stmt

	mu   sync.Mutex
	done bool
}

// Begin takes the writer lock and opens a write batch. Only one batch can be
// open per index at a time; a batch held by another process yields
// apperr.ErrIndexLocked.
func (s *Store) Begin(ctx context.Context) (*Batch, error) {
	s.writeMu.Lock()
	if err := s.lock.acquire(); err != nil {
		s.writeMu.Unlock()
		return nil, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		s.unlock()
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, `INSERT INTO postings (field, token, doc, freq) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		s.unlock()
		return nil, fmt.Errorf("index: prepare posting insert: %w", err)
	}
	return &Batch{store: s, tx: tx, ins: ins}, nil
}

func (s *Store) unlock() {
	_ = s.lock.release()
	s.writeMu.Unlock()
}

// Upsert replaces every posting owned by n.ID with postings for its current
// field values.
func (b *Batch) Upsert(ctx context.Context, n *models.Note) error {
	return b.inSavepoint(ctx, n.ID, "upsert", func() error {
		return b.upsert(ctx, n)
	})
}

// Remove deletes every posting owned by id. Removing an unknown id is a no-op.
func (b *Batch) Remove(ctx context.Context, id string) error {
	return b.inSavepoint(ctx, id, "remove", func() error {
		if _, err := b.tx.ExecContext(ctx, `DELETE FROM postings WHERE doc IN (SELECT doc FROM notes WHERE id = ?)`, id); err != nil {
			return err
		}
		_, err := b.tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
		return err
	})
}

// Clear removes every note and posting. Used by full rebuilds so the old index
// stays visible until the rebuild commits.
func (b *Batch) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return sql.ErrTxDone
	}
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM postings`); err != nil {
		return fmt.Errorf("index: clear postings: %w", err)
	}
	if _, err := b.tx.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return fmt.Errorf("index: clear notes: %w", err)
	}
	return nil
}

// Commit atomically publishes the batch and releases the writer lock.
func (b *Batch) Commit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return sql.ErrTxDone
	}
	b.done = true
	defer b.store.unlock()
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}
	return nil
}

// Rollback discards the batch. It is a no-op after Commit.
func (b *Batch) Rollback() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return nil
	}
	b.done = true
	defer b.store.unlock()
	if err := b.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("index: rollback: %w", err)
	}
	return nil
}

// inSavepoint runs fn so that a failure undoes only fn's own writes.
func (b *Batch) inSavepoint(ctx context.Context, id, op string, fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return &PersistenceError{NoteID: id, Op: op, Err: sql.ErrTxDone}
	}

	if _, err := b.tx.ExecContext(ctx, `SAVEPOINT note`); err != nil {
		return &PersistenceError{NoteID: id, Op: op, Err: err}
	}
	if err := fn(); err != nil {
		_, _ = b.tx.ExecContext(ctx, `ROLLBACK TO note`)
		_, _ = b.tx.ExecContext(ctx, `RELEASE note`)
		return &PersistenceError{NoteID: id, Op: op, Err: err}
	}
	if _, err := b.tx.ExecContext(ctx, `RELEASE note`); err != nil {
		return &PersistenceError{NoteID: id, Op: op, Err: err}
	}
	return nil
}

func (b *Batch) upsert(ctx context.Context, n *models.Note) error {
	mtime := n.Mtime.UnixNano()

	var doc int64
	err := b.tx.QueryRowContext(ctx, `SELECT doc FROM notes WHERE id = ?`, n.ID).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := b.tx.ExecContext(ctx, `INSERT INTO notes (id, mtime) VALUES (?, ?)`, n.ID, mtime)
		if err != nil {
			return fmt.Errorf("insert note: %w", err)
		}
		if doc, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("note doc: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup note: %w", err)
	default:
		if _, err := b.tx.ExecContext(ctx, `UPDATE notes SET mtime = ? WHERE doc = ?`, mtime, doc); err != nil {
			return fmt.Errorf("update note: %w", err)
		}
		// reverse mapping: every posting this note contributed before
		if _, err := b.tx.ExecContext(ctx, `DELETE FROM postings WHERE doc = ?`, doc); err != nil {
			return fmt.Errorf("delete postings: %w", err)
		}
	}

	for _, tf := range TermsOf(n) {
		if _, err := b.ins.ExecContext(ctx, string(tf.Field), tf.Token, doc, tf.Freq); err != nil {
			return fmt.Errorf("insert posting %s:%s: %w", tf.Field, tf.Token, err)
		}
	}
	return nil
}

// TermFreq is one term a note contributes, with its frequency in that note.
type TermFreq struct {
	Term
	Freq int
}

// TermsOf lists the postings a note contributes, sorted by field then token.
func TermsOf(n *models.Note) []TermFreq {
	byField := map[schema.Field]map[string]int{
		schema.File:    schema.Frequencies(schema.File, n.ID),
		schema.Tag:     schema.Frequencies(schema.Tag, n.Tags...),
		schema.Ref:     schema.Frequencies(schema.Ref, n.Refs...),
		schema.Title:   schema.Frequencies(schema.Title, n.Title),
		schema.Content: schema.Frequencies(schema.Content, n.Content),
	}

	var out []TermFreq
	for _, f := range schema.All() {
		for tok, freq := range byField[f] {
			if f.Exact() {
				// set semantics: a tag listed twice is still one posting
				freq = 1
			}
			out = append(out, TermFreq{Term: Term{Field: f, Token: tok}, Freq: freq})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// Mtimes returns the note id -> mtime mapping as seen inside the batch.
func (b *Batch) Mtimes(ctx context.Context) (map[string]time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, err := b.tx.QueryContext(ctx, `SELECT id, mtime FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: mtimes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var mtime int64
		if err := rows.Scan(&id, &mtime); err != nil {
			return nil, err
		}
		out[id] = time.Unix(0, mtime)
	}
	return out, rows.Err()
}
