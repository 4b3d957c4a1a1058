// Package noteservice coordinates the vault, the indexing pipeline and the
// query engine for the CLI and MCP surfaces.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/starford/zest/internal/index"
	"github.com/starford/zest/internal/models"
	"github.com/starford/zest/internal/pipeline"
	"github.com/starford/zest/internal/query"
	"github.com/starford/zest/internal/schema"
	"github.com/starford/zest/internal/vault"
)

// Service runs note operations over a fixed set of roots.
type Service struct {
	store  *index.Store
	pipe   *pipeline.Pipeline
	paths  []string
	ext    string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithExtension sets the extension given to created notes.
func WithExtension(ext string) Option {
	return func(s *Service) { s.ext = ext }
}

// WithClock overrides the time source used to name created notes.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a note service over the configured root paths. The
// paths are resolved by each operation that touches the filesystem.
func NewService(store *index.Store, pipe *pipeline.Pipeline, paths []string, opts ...Option) *Service {
	s := &Service{
		store:  store,
		pipe:   pipe,
		paths:  paths,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Roots returns the canonical note roots. Any unresolvable root is reported
// as a *vault.DirectoryWalkError next to the roots that did resolve.
func (s *Service) Roots() ([]string, error) {
	return vault.CanonicalRoots(s.paths)
}

// Update runs an incremental indexing pass.
func (s *Service) Update(ctx context.Context) (*models.Summary, error) {
	roots, err := s.Roots()
	if err != nil {
		return nil, err
	}
	return s.pipe.Run(ctx, roots)
}

// Reindex rebuilds the index from scratch.
func (s *Service) Reindex(ctx context.Context) (*models.Summary, error) {
	roots, err := s.Roots()
	if err != nil {
		return nil, err
	}
	return s.pipe.Rebuild(ctx, roots)
}

// Search evaluates a query string. limit <= 0 returns every hit.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]models.Hit, error) {
	n, err := query.Parse(q)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, n, limit)
}

func (s *Service) evaluate(ctx context.Context, n query.Node, limit int) ([]models.Hit, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer snap.Close()

	hits, err := query.Evaluate(snap, n)
	if err != nil {
		return nil, fmt.Errorf("noteservice: evaluate %s: %w", n, err)
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Backlinks returns the ids of notes that link to target.
func (s *Service) Backlinks(ctx context.Context, target string) ([]string, error) {
	id, err := vault.Canonical(target)
	if err != nil {
		// refs to missing notes are stored verbatim, so fall back to the cleaned path
		id, err = filepath.Abs(target)
		if err != nil {
			return nil, fmt.Errorf("noteservice: resolve %s: %w", target, err)
		}
	}
	hits, err := s.evaluate(ctx, &query.TermNode{Field: schema.Ref, Token: id}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out, nil
}

// Read returns the raw content of a note inside the roots.
func (s *Service) Read(_ context.Context, path string) ([]byte, error) {
	roots, _ := s.Roots()
	return vault.Read(roots, path)
}

// Create writes a new empty, timestamp-named note into the first root,
// indexes it and returns its path.
func (s *Service) Create(ctx context.Context) (string, error) {
	if len(s.paths) == 0 {
		return "", fmt.Errorf("noteservice: no note roots configured")
	}
	roots, err := s.Roots()
	if err != nil {
		return "", err
	}
	path, err := vault.Create(roots[0], s.now(), s.ext)
	if err != nil {
		return "", err
	}
	s.logger.Info("noteservice: created note", slog.String("path", path))
	if _, err := s.Update(ctx); err != nil {
		return path, err
	}
	return path, nil
}

// RemoveByQuery deletes every note file matching q and updates the index.
// It returns the deleted paths.
func (s *Service) RemoveByQuery(ctx context.Context, q string) ([]string, *models.Summary, error) {
	hits, err := s.Search(ctx, q, 0)
	if err != nil {
		return nil, nil, err
	}
	paths := make([]string, len(hits))
	for i, h := range hits {
		paths[i] = h.ID
	}
	if err := vault.Delete(paths...); err != nil {
		return nil, nil, err
	}
	for _, p := range paths {
		s.logger.Info("noteservice: removed note", slog.String("path", p))
	}
	sum, err := s.Update(ctx)
	if err != nil {
		return paths, nil, err
	}
	return paths, sum, nil
}

// Stats reports index size.
func (s *Service) Stats(ctx context.Context) (index.Stats, error) {
	return s.store.Stats(ctx)
}
