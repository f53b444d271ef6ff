package planner

import (
	"linkage/internal/match/models"
	dErrors "linkage/pkg/domain-errors"
)

// RefPair is a validated unbreak pair.
type RefPair struct {
	First  models.Ref
	Second models.Ref
}

// PlanUnbreak removes the broken-match markers between each pair, both
// directions, and reports per-record summaries. Records must already be
// fetched and validated; a pair member missing from records is an integrity
// failure.
func (p *Planner) PlanUnbreak(pairs []RefPair, records []*models.Record, summary *models.Summary) (*models.MutationPlan, error) {
	ws := newWorkspace(records)

	for _, pair := range pairs {
		first, ok := ws.checkout(pair.First)
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s not found", pair.First)
		}
		second, ok := ws.checkout(pair.Second)
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "record %s not found", pair.Second)
		}

		first.RemoveBrokenMatch(pair.Second)
		second.RemoveBrokenMatch(pair.First)

		counterpartGolden, _ := second.ReferTarget()
		if entry, ok := summary.Find(pair.First); ok {
			entry.Related = append(entry.Related, pair.Second)
		} else {
			summary.Add(&models.OperationSummary{
				Editing:     pair.First,
				PriorGolden: counterpartGolden,
				Related:     []models.Ref{pair.Second},
			})
		}
	}

	// Drop untouched records: only records that actually lost a marker need
	// a write or a re-match.
	plan := models.NewMutationPlan()
	for _, staged := range ws.plan.Records() {
		original, ok := ws.fetched[staged.Ref()]
		if ok && len(original.BrokenMatches) == len(staged.BrokenMatches) {
			continue
		}
		plan.StageExisting(staged)
	}
	return plan, nil
}
