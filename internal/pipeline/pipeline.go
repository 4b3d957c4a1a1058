// Package pipeline brings the index in line with the note files on disk.
//
// A pass walks the roots, diffs file mtimes against the index, parses and
// resolves changed notes on a bounded worker pool, funnels them to a single
// writer, removes notes that disappeared and ends with exactly one commit.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/zest/internal/index"
	"github.com/starford/zest/internal/models"
	"github.com/starford/zest/internal/parser"
	"github.com/starford/zest/internal/resolver"
	"github.com/starford/zest/internal/vault"
)

// Pipeline runs indexing passes against one store.
type Pipeline struct {
	store   *index.Store
	workers int
	exts    []string
	logger  *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithWorkers bounds the parse pool. Zero or less means runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// WithExtensions sets the note file extensions.
func WithExtensions(exts ...string) Option {
	return func(p *Pipeline) { p.exts = exts }
}

// New creates a pipeline writing to store.
func New(store *index.Store, opts ...Option) *Pipeline {
	p := &Pipeline{store: store, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}
	return p
}

// Run performs an incremental pass over roots.
func (p *Pipeline) Run(ctx context.Context, roots []string) (*models.Summary, error) {
	return p.pass(ctx, roots, false)
}

// Rebuild wipes the index and re-indexes every note, in one transaction.
func (p *Pipeline) Rebuild(ctx context.Context, roots []string) (*models.Summary, error) {
	return p.pass(ctx, roots, true)
}

// job is one file to (re)index.
type job struct {
	file  models.NoteFile
	isNew bool
}

// result is the outcome of parsing one job.
type result struct {
	job
	note     *models.Note
	warnings []resolver.Warning
	err      error
}

func (p *Pipeline) pass(ctx context.Context, roots []string, rebuild bool) (*models.Summary, error) {
	start := time.Now()

	// Enumerate everything before taking the writer lock so an unusable root
	// aborts with nothing written.
	listing, err := vault.NewWalker(p.logger, p.exts...).Walk(ctx, roots)
	if err != nil {
		return nil, err
	}

	batch, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer batch.Rollback()

	if rebuild {
		if err := batch.Clear(ctx); err != nil {
			return nil, err
		}
	}
	stored, err := batch.Mtimes(ctx)
	if err != nil {
		return nil, err
	}

	sum := &models.Summary{Failures: listing.Failures}

	var jobs []job
	seen := make(map[string]bool, len(listing.Files))
	for _, f := range listing.Files {
		seen[f.ID] = true
		prev, ok := stored[f.ID]
		switch {
		case !ok:
			jobs = append(jobs, job{file: f, isNew: true})
		case !prev.Equal(f.Mtime):
			jobs = append(jobs, job{file: f})
		default:
			sum.Unchanged++
		}
	}

	if err := p.index(ctx, batch, jobs, sum); err != nil {
		return nil, err
	}

	var gone []string
	for id := range stored {
		if seen[id] {
			continue
		}
		if listing.IsProtected(id) {
			p.logger.Debug("pipeline: keeping note below unreadable directory", slog.String("id", id))
			continue
		}
		gone = append(gone, id)
	}
	sort.Strings(gone)
	for _, id := range gone {
		if err := batch.Remove(ctx, id); err != nil {
			p.logger.Warn("pipeline: remove failed", slog.String("id", id), slog.Any("error", err))
			sum.Failures = append(sum.Failures, models.FileError{Path: id, Err: err})
			continue
		}
		p.logger.Debug("pipeline: removed", slog.String("id", id))
		sum.Removed++
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}

	p.logger.Info("pipeline: pass complete",
		slog.Bool("rebuild", rebuild),
		slog.Int("indexed", sum.Indexed),
		slog.Int("updated", sum.Updated),
		slog.Int("removed", sum.Removed),
		slog.Int("unchanged", sum.Unchanged),
		slog.Int("failures", len(sum.Failures)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return sum, nil
}

// index parses jobs on the worker pool and upserts them from one goroutine.
func (p *Pipeline) index(ctx context.Context, w index.Writer, jobs []job, sum *models.Summary) error {
	results := make(chan result, p.workers)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for r := range results {
			p.write(ctx, w, r, sum)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results <- p.prepare(j)
			return nil
		})
	}
	err := g.Wait()
	close(results)
	<-done
	return err
}

// prepare parses and resolves one note.
func (p *Pipeline) prepare(j job) result {
	draft, err := parser.ParseFile(j.file.ID)
	if err != nil {
		return result{job: j, err: err}
	}
	refs, warnings := resolver.Resolve(j.file.ID, draft.Links)
	tags := append([]string(nil), draft.Tags...)
	sort.Strings(tags)
	return result{
		job: j,
		note: &models.Note{
			ID:      j.file.ID,
			Tags:    tags,
			Title:   draft.Title,
			Content: draft.Content,
			Refs:    refs,
			Mtime:   j.file.Mtime,
		},
		warnings: warnings,
	}
}

// write applies one result to the batch. Only the writer goroutine touches sum.
func (p *Pipeline) write(ctx context.Context, w index.Writer, r result, sum *models.Summary) {
	id := r.file.ID
	if r.err != nil {
		var pe *parser.ParseError
		if errors.As(r.err, &pe) {
			p.logger.Warn("pipeline: parse failed", slog.String("path", id), slog.Int("line", pe.Line), slog.Any("error", pe.Err))
		} else {
			p.logger.Warn("pipeline: parse failed", slog.String("path", id), slog.Any("error", r.err))
		}
		sum.Failures = append(sum.Failures, models.FileError{Path: id, Err: r.err})
		return
	}
	for _, warn := range r.warnings {
		p.logger.Warn("pipeline: link not resolved", slog.String("path", id), slog.String("target", warn.Target), slog.String("reason", warn.Reason))
		sum.Warnings = append(sum.Warnings, warn.Error())
	}
	if err := w.Upsert(ctx, r.note); err != nil {
		p.logger.Warn("pipeline: upsert failed", slog.String("path", id), slog.Any("error", err))
		sum.Failures = append(sum.Failures, models.FileError{Path: id, Err: err})
		return
	}
	if r.isNew {
		sum.Indexed++
		p.logger.Debug("pipeline: indexed", slog.String("path", id))
	} else {
		sum.Updated++
		p.logger.Debug("pipeline: updated", slog.String("path", id))
	}
}
