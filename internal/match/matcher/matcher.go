// Package matcher defines the contract to the external similarity-matching
// engine. The engine owns scoring; this service only consumes categorized
// candidates.
package matcher

import (
	"context"

	"linkage/internal/match/models"
)

// Candidate is one scored association proposed by the engine. Candidates are
// transient: they are reflected into tags but never persisted directly.
type Candidate struct {
	Record *models.Record
	Score  float64
}

// Result is the engine's categorized output for one source record.
type Result struct {
	Auto      []Candidate
	Potential []Candidate
	Conflicts []Candidate
}

// DropResolvedTargets removes potential and conflict candidates whose
// current golden record is in the resolved set, so freshly settled links do
// not resurface as issues.
func (r *Result) DropResolvedTargets(resolvedGoldens map[string]bool) {
	r.Potential = dropResolved(r.Potential, resolvedGoldens)
	r.Conflicts = dropResolved(r.Conflicts, resolvedGoldens)
}

func dropResolved(candidates []Candidate, resolvedGoldens map[string]bool) []Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		golden, ok := c.Record.ReferTarget()
		if ok && resolvedGoldens[golden.ID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Matcher produces categorized match candidates for a source record.
// Records whose IDs appear in ignore are excluded from the result.
type Matcher interface {
	PerformMatch(ctx context.Context, source *models.Record, ignore []string) (*Result, error)
}

// Response is the opaque body returned by the re-matching pipeline for one
// resubmitted record, merged across records for the unbreak reply.
type Response map[string]any

// Rematcher resubmits a record through the full matching pipeline on behalf
// of its originating client system, regenerating candidate links and tags.
type Rematcher interface {
	Resubmit(ctx context.Context, clientID string, record *models.Record) (Response, error)
}
