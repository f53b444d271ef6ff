package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"linkage/internal/audit"
	"linkage/internal/match/bundle"
	"linkage/internal/match/matcher"
	"linkage/internal/match/models"
	"linkage/internal/match/planner"
	dErrors "linkage/pkg/domain-errors"
)

// Unbreak reverses the severance between each pair of member records and
// resubmits every touched record through the matching pipeline so its
// candidate links regrow. Validation is all-or-nothing; the marker removal
// commits atomically. A re-match failure after the commit is reported but
// the committed marker removal stands.
func (s *Service) Unbreak(ctx context.Context, pairs []models.UnbreakPair, actor audit.Actor) (matcher.Response, error) {
	summary := models.NewSummary("unbreak")

	var refPairs []planner.RefPair
	for _, pair := range pairs {
		first, err1 := models.ParseRef(pair.ID1)
		second, err2 := models.ParseRef(pair.ID2)
		if err1 != nil || err2 != nil {
			editing := first
			if err1 != nil {
				editing = models.Ref{}
			}
			summary.Add(&models.OperationSummary{
				Editing: editing,
				Outcome: models.OutcomeInvalid,
				Desc:    "invalid ID format in unbreak pair",
			})
			summary.Block()
			continue
		}
		refPairs = append(refPairs, planner.RefPair{First: first, Second: second})
	}
	if len(refPairs) == 0 && len(pairs) > 0 {
		summary.Block()
	}
	if !summary.OK() {
		s.recorder.Record(ctx, summary, actor)
		s.recordMutation("unbreak", models.OutcomeInvalid)
		return nil, dErrors.New(dErrors.CodeValidation, "invalid unbreak pair format")
	}

	var refs []models.Ref
	for _, pair := range refPairs {
		refs = append(refs, pair.First, pair.Second)
	}
	records, err := s.fetchByRefs(ctx, refs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch records for unbreak")
	}

	for _, ref := range refs {
		rec, ok := records[ref]
		if !ok {
			summary.Add(&models.OperationSummary{
				Editing: ref,
				Outcome: models.OutcomeError,
				Desc:    "record not found in the record store",
			})
			summary.Block()
			continue
		}
		if _, ok := rec.ClientSource(s.systems); !ok {
			summary.Add(&models.OperationSummary{
				Editing: ref,
				Outcome: models.OutcomeInvalid,
				Desc:    "record has no client source tag",
			})
			summary.Block()
		}
	}
	if !summary.OK() {
		s.recorder.Record(ctx, summary, actor)
		s.recordMutation("unbreak", models.OutcomeInvalid)
		return nil, dErrors.New(dErrors.CodeValidation, "unbreak request failed validation")
	}

	var lockKeys []string
	for _, rec := range records {
		if golden, ok := rec.ReferTarget(); ok {
			lockKeys = append(lockKeys, golden.ID)
		}
	}
	unlock := s.goldenLocks.Lock(lockKeys)
	defer unlock()

	// Re-read under the lock so concurrent marker edits are not lost.
	records, err = s.fetchByRefs(ctx, refs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch records for unbreak")
	}
	recordList := make([]*models.Record, 0, len(records))
	for _, rec := range records {
		recordList = append(recordList, rec)
	}

	plan, err := s.planner.PlanUnbreak(refPairs, recordList, summary)
	if err != nil {
		summary.Block()
		s.recorder.Record(ctx, summary, actor)
		s.recordMutation("unbreak", models.OutcomeError)
		return nil, err
	}

	if plan.Len() > 0 {
		if err := s.commit(ctx, bundle.FromPlan(plan)); err != nil {
			summary.MarkAll(models.OutcomeError, "Error occurred while saving changes")
			s.recorder.Record(ctx, summary, actor)
			s.recordMutation("unbreak", models.OutcomeError)
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "commit unbreak plan")
		}
	}

	// Marker removal is committed; every record re-enters matching
	// independently, and one failed resubmission does not stop the rest.
	merged := matcher.Response{}
	var mu sync.Mutex
	var g errgroup.Group
	for _, rec := range plan.Records() {
		rec := rec
		g.Go(func() error {
			clientID, ok := rec.ClientSource(s.systems)
			if !ok {
				return dErrors.Newf(dErrors.CodeInvariantViolation, "record %s lost its client source tag", rec.Ref())
			}
			resp, err := s.rematcher.Resubmit(ctx, clientID, rec)
			if err != nil {
				return dErrors.Wrapf(err, dErrors.CodeUnavailable, "resubmit %s for matching", rec.Ref())
			}
			mu.Lock()
			for k, v := range resp {
				merged[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	rematchErr := g.Wait()

	s.recorder.Record(ctx, summary, actor)
	if rematchErr != nil {
		s.recordMutation("unbreak", models.OutcomeError)
		return merged, rematchErr
	}
	s.recordMutation("unbreak", models.OutcomeSuccess)
	return merged, nil
}
