package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/zest/internal/apperr"
	"github.com/starford/zest/internal/models"
	"github.com/starford/zest/internal/schema"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func note(id, title, content string, tags, refs []string) *models.Note {
	return &models.Note{
		ID:      id,
		Title:   title,
		Content: content,
		Tags:    tags,
		Refs:    refs,
		Mtime:   time.Unix(1700000000, 0),
	}
}

func commitNotes(t *testing.T, s *Store, notes ...*models.Note) {
	t.Helper()
	ctx := context.Background()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	for _, n := range notes {
		require.NoError(t, b.Upsert(ctx, n))
	}
	require.NoError(t, b.Commit())
}

func TestSchemaCreation(t *testing.T) {
	s := testStore(t)
	var count int
	require.NoError(t, s.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count))
	require.NoError(t, s.conn.QueryRow(`SELECT count(*) FROM postings`).Scan(&count))
	var version int
	require.NoError(t, s.conn.QueryRow(`PRAGMA user_version`).Scan(&version))
	assert.Equal(t, schemaVersion, version)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	require.NoError(t, err)
	commitNotes(t, s, note("/n/a.md", "Alpha", "", []string{"x"}, nil))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Lookup(context.Background(), schema.Tag, "x")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"/n/a.md": 1}, got)
}

func TestMtimes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	commitNotes(t, s,
		note("/n/a.md", "Alpha", "", nil, nil),
		note("/n/b.md", "Beta", "", nil, nil),
	)

	got, err := s.Mtimes(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got["/n/a.md"].Equal(time.Unix(1700000000, 0)))

	b, err := s.Begin(ctx)
	require.NoError(t, err)
	defer b.Rollback()
	inside, err := b.Mtimes(ctx)
	require.NoError(t, err)
	assert.Len(t, inside, 2)
}

func TestUpsertAndLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	commitNotes(t, s, note("/n/a.md", "Alpha note", "alpha alpha beta", []string{"a", "b"}, []string{"/n/other"}))

	for _, tc := range []struct {
		field schema.Field
		token string
		want  map[string]int
	}{
		{schema.Tag, "a", map[string]int{"/n/a.md": 1}},
		{schema.Tag, "b", map[string]int{"/n/a.md": 1}},
		{schema.Tag, "c", map[string]int{}},
		{schema.File, "/n/a.md", map[string]int{"/n/a.md": 1}},
		{schema.Ref, "/n/other", map[string]int{"/n/a.md": 1}},
		{schema.Title, "alpha", map[string]int{"/n/a.md": 1}},
		{schema.Content, "alpha", map[string]int{"/n/a.md": 2}},
		{schema.Content, "Alpha", map[string]int{}},
	} {
		got, err := s.Lookup(ctx, tc.field, tc.token)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s:%s", tc.field, tc.token)
	}
}

func TestUncommittedInvisible(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	b, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Upsert(ctx, note("/n/a.md", "", "", []string{"x"}, nil)))

	got, err := s.Lookup(ctx, schema.Tag, "x")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, b.Commit())
	got, err = s.Lookup(ctx, schema.Tag, "x")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSnapshotIsolation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	commitNotes(t, s, note("/n/a.md", "", "", []string{"x"}, nil))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	defer snap.Close()
	before, err := snap.Lookup(schema.Tag, "x")
	require.NoError(t, err)
	require.Len(t, before.Freqs, 1)

	commitNotes(t, s, note("/n/b.md", "", "", []string{"x"}, nil))

	after, err := snap.Lookup(schema.Tag, "x")
	require.NoError(t, err)
	assert.Len(t, after.Freqs, 1, "open snapshot must not see later commits")
}

func TestRollbackDiscards(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Upsert(ctx, note("/n/a.md", "", "", []string{"x"}, nil)))
	require.NoError(t, b.Rollback())
	require.NoError(t, b.Rollback(), "second rollback is a no-op")

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Notes)
}

func TestUpsertIdempotent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	n := note("/n/a.md", "Same", "same body", []string{"t"}, []string{"/n/b.md"})

	commitNotes(t, s, n)
	terms1, err := s.Terms(ctx, n.ID)
	require.NoError(t, err)
	st1, err := s.Stats(ctx)
	require.NoError(t, err)

	commitNotes(t, s, n)
	terms2, err := s.Terms(ctx, n.ID)
	require.NoError(t, err)
	st2, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, terms1, terms2)
	assert.Equal(t, st1, st2)
	assert.Equal(t, 1, st2.Notes)
}

func TestUpsertReplacesPostings(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	commitNotes(t, s, note("/n/a.md", "Old title", "", []string{"x"}, []string{"/n/x"}))
	commitNotes(t, s, note("/n/a.md", "New heading", "", []string{"y"}, []string{"/n/y"}))

	for _, stale := range []Term{{schema.Title, "old"}, {schema.Title, "title"}, {schema.Tag, "x"}, {schema.Ref, "/n/x"}} {
		got, err := s.Lookup(ctx, stale.Field, stale.Token)
		require.NoError(t, err)
		assert.Empty(t, got, "stale %s:%s", stale.Field, stale.Token)
	}

	terms, err := s.Terms(ctx, "/n/a.md")
	require.NoError(t, err)
	assert.Equal(t, []TermFreq{
		{Term{schema.File, "/n/a.md"}, 1},
		{Term{schema.Ref, "/n/y"}, 1},
		{Term{schema.Tag, "y"}, 1},
		{Term{schema.Title, "heading"}, 1},
		{Term{schema.Title, "new"}, 1},
	}, terms)
}

func TestUpsertKeepsDocNumber(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	docOf := func() []uint32 {
		snap, err := s.Snapshot(ctx)
		require.NoError(t, err)
		defer snap.Close()
		p, err := snap.Lookup(schema.File, "/n/a.md")
		require.NoError(t, err)
		return p.Docs()
	}

	commitNotes(t, s, note("/n/a.md", "", "", nil, nil), note("/n/b.md", "", "", nil, nil))
	before := docOf()
	commitNotes(t, s, note("/n/a.md", "changed", "", nil, nil))
	after := docOf()

	require.Len(t, before, 1)
	assert.Equal(t, before, after)
}

func TestRemove(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	commitNotes(t, s, note("/n/a.md", "Alpha", "body", []string{"x"}, []string{"/n/b"}))

	b, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Remove(ctx, "/n/a.md"))
	require.NoError(t, b.Remove(ctx, "/n/absent.md"))
	require.NoError(t, b.Commit())

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
	terms, err := s.Terms(ctx, "/n/a.md")
	require.NoError(t, err)
	assert.Empty(t, terms)
}

func TestClear(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	commitNotes(t, s, note("/n/a.md", "", "", nil, nil))

	b, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Clear(ctx))
	require.NoError(t, b.Commit())

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Notes)
}

func TestPersistenceErrorSkipsOnlyThatNote(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, err := s.conn.Exec(`
		CREATE TRIGGER fail_bad BEFORE INSERT ON notes
		WHEN NEW.id = '/n/bad.md'
		BEGIN SELECT RAISE(ABORT, 'disk on fire'); END;
	`)
	require.NoError(t, err)

	b, err := s.Begin(ctx)
	require.NoError(t, err)
	err = b.Upsert(ctx, note("/n/bad.md", "", "", []string{"x"}, nil))
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "/n/bad.md", pe.NoteID)
	require.NoError(t, b.Upsert(ctx, note("/n/good.md", "", "", []string{"x"}, nil)))
	require.NoError(t, b.Commit())

	got, err := s.Lookup(ctx, schema.Tag, "x")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"/n/good.md": 1}, got)
}

func TestUpsertAfterCommitFails(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	b, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Commit())

	var pe *PersistenceError
	assert.True(t, errors.As(b.Upsert(ctx, note("/n/a.md", "", "", nil, nil)), &pe))
}

func TestSecondWriterLocked(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no cross-process lock on windows")
	}
	path := filepath.Join(t.TempDir(), "index.db")
	s1, err := Open(path)
	require.NoError(t, err)
	defer s1.Close()
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	ctx := context.Background()
	b, err := s1.Begin(ctx)
	require.NoError(t, err)

	_, err = s2.Begin(ctx)
	assert.ErrorIs(t, err, apperr.ErrIndexLocked)

	require.NoError(t, b.Commit())
	b2, err := s2.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, b2.Rollback())
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	garbage := make([]byte, 4096)
	for i := range garbage {
		garbage[i] = byte('g')
	}
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	_, err := Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrIndexCorrupt)
	var ce *CorruptError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, path, ce.Path)

	s, err := Recreate(path)
	require.NoError(t, err)
	defer s.Close()
	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Notes)
}

func TestOpenVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.conn.Exec(`PRAGMA user_version = 99`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, apperr.ErrIndexCorrupt)
}

func TestTermsOf(t *testing.T) {
	n := note("/n/a.md", "Go Go", "go", []string{"t", "t"}, nil)
	got := TermsOf(n)
	assert.Equal(t, []TermFreq{
		{Term{schema.Content, "go"}, 1},
		{Term{schema.File, "/n/a.md"}, 1},
		{Term{schema.Tag, "t"}, 1},
		{Term{schema.Title, "go"}, 2},
	}, got)
}
