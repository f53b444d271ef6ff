// Package matrix builds the recursive cross-record score matrix operators
// review. The match graph can cycle (a record can indirectly match back to
// an ancestor), so traversal keeps a visited set keyed by canonical source
// identifier; the set only grows and the graph is finite, which bounds the
// recursion.
package matrix

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"linkage/internal/match/matcher"
	"linkage/internal/match/models"
)

// Builder explores the match graph from a seed record.
type Builder struct {
	matcher matcher.Matcher
	systems models.Systems
	logger  *slog.Logger
}

// Option configures the Builder.
type Option func(*Builder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// New creates a Builder.
func New(m matcher.Matcher, systems models.Systems, opts ...Option) *Builder {
	b := &Builder{matcher: m, systems: systems, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces one matrix row per reachable record. The three match
// categories of each node expand concurrently; within a category expansion
// is sequential to bound fan-out.
func (b *Builder) Build(ctx context.Context, seed *models.Record) ([]models.MatrixRow, error) {
	w := &walk{builder: b, visited: make(map[string]bool)}
	if err := w.expand(ctx, seed); err != nil {
		return nil, err
	}
	return w.rows, nil
}

type walk struct {
	builder *Builder

	mu      sync.Mutex
	visited map[string]bool
	rows    []models.MatrixRow
}

// tryVisit marks sourceID visited and reports whether this caller won the
// claim. Categories expand concurrently, so the check and the mark must be
// one atomic step.
func (w *walk) tryVisit(sourceID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.visited[sourceID] {
		return false
	}
	w.visited[sourceID] = true
	return true
}

func (w *walk) seen(sourceID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visited[sourceID]
}

func (w *walk) expand(ctx context.Context, record *models.Record) error {
	sourceID, ok := record.SourceIdentifier(w.builder.systems)
	if !ok {
		w.builder.logger.WarnContext(ctx, "record has no source identifier, skipping matrix node",
			"record", record.Ref().String())
		return nil
	}
	if !w.tryVisit(sourceID) {
		return nil
	}

	result, err := w.builder.matcher.PerformMatch(ctx, record, []string{record.ID})
	if err != nil {
		return err
	}

	row := w.buildRow(record, sourceID, result)
	w.mu.Lock()
	w.rows = append(w.rows, row)
	w.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, category := range [][]matcher.Candidate{result.Auto, result.Potential, result.Conflicts} {
		g.Go(func() error {
			for _, candidate := range category {
				if id, ok := candidate.Record.SourceIdentifier(w.builder.systems); ok && w.seen(id) {
					continue
				}
				if err := w.expand(gctx, candidate.Record); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *walk) buildRow(record *models.Record, sourceID string, result *matcher.Result) models.MatrixRow {
	golden, _ := record.ReferTarget()
	row := models.MatrixRow{
		ID:        record.ID,
		Gender:    record.Gender,
		Given:     record.GivenName(),
		Family:    record.Family,
		BirthDate: record.BirthDate,
		UID:       golden.ID,
		OUID:      golden.ID,
		SourceID:  sourceID,
		Scores:    make(map[string]float64),
	}
	if source, ok := record.ClientSource(w.builder.systems); ok {
		row.Source = source
	}
	for _, category := range [][]matcher.Candidate{result.Auto, result.Potential, result.Conflicts} {
		for _, candidate := range category {
			if id, ok := candidate.Record.SourceIdentifier(w.builder.systems); ok {
				row.Scores[id] = candidate.Score
			}
		}
	}
	return row
}
