package service

import (
	"context"

	"linkage/internal/audit"
	"linkage/internal/match/bundle"
	"linkage/internal/match/models"
	dErrors "linkage/pkg/domain-errors"
)

// ResolveStatus tells the transport layer how to answer a resolve request.
type ResolveStatus int

const (
	// ResolveApplied means the graph or the record's tags changed.
	ResolveApplied ResolveStatus = iota
	// ResolveNoop means the request asked for no change at all.
	ResolveNoop
)

// Resolve reassigns member records between golden records per the request,
// re-matches the record under review and reconciles its issue tags. Graph
// writes are atomic; once committed they stand even if the follow-up
// re-match or tag reconciliation fails, and failures past the commit are
// reported without rollback.
func (s *Service) Resolve(ctx context.Context, req *models.ResolveRequest, actor audit.Actor) (ResolveStatus, error) {
	if err := req.Validate(); err != nil {
		return ResolveNoop, err
	}

	pivotRef := models.Ref{Type: s.recordType, ID: req.ResolvingFrom}
	summary := models.NewSummary("resolve")

	if !req.NeedsGraphChange() {
		if !req.RemoveFlag {
			return ResolveNoop, nil
		}
		if err := s.clearIssueFlags(ctx, pivotRef, summary, actor); err != nil {
			return ResolveNoop, err
		}
		return ResolveApplied, nil
	}

	fetchIDs := map[string]bool{req.ResolvingFrom: true}
	var lockKeys []string
	for _, res := range req.Resolves {
		if !res.NeedsChange() {
			continue
		}
		fetchIDs[res.ID] = true
		fetchIDs[res.OldGolden] = true
		lockKeys = append(lockKeys, res.OldGolden)
		if target := res.Target(); !target.IsNew() {
			fetchIDs[target.ExistingID()] = true
			lockKeys = append(lockKeys, target.ExistingID())
		}
	}
	unlock := s.goldenLocks.Lock(lockKeys)
	defer unlock()

	ids := make([]string, 0, len(fetchIDs))
	for id := range fetchIDs {
		ids = append(ids, id)
	}
	records, err := s.store.FindByIDs(ctx, s.recordType, ids, true)
	if err != nil {
		return ResolveNoop, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch records for resolve")
	}

	plan, err := s.planner.PlanResolve(s.recordType, records, req.Resolves)
	if err != nil {
		summary.Add(&models.OperationSummary{
			Editing: pivotRef,
			Outcome: models.OutcomeError,
			Desc:    err.Error(),
		})
		summary.Block()
		s.recorder.Record(ctx, summary, actor)
		s.recordMutation("resolve", models.OutcomeError)
		return ResolveNoop, err
	}

	for _, res := range req.Resolves {
		if !res.NeedsChange() {
			continue
		}
		memberRef := models.Ref{Type: s.recordType, ID: res.ID}
		entry := &models.OperationSummary{
			Editing:     memberRef,
			PriorGolden: models.Ref{Type: s.recordType, ID: res.OldGolden},
			Outcome:     models.OutcomeSuccess,
		}
		if member, ok := plan.Get(memberRef); ok {
			if golden, ok := member.ReferTarget(); ok {
				entry.Related = append(entry.Related, golden)
			}
		}
		summary.Add(entry)
	}

	if err := s.commit(ctx, bundle.FromPlan(plan)); err != nil {
		summary.MarkAll(models.OutcomeError, "Changes were not saved")
		s.recorder.Record(ctx, summary, actor)
		s.recordMutation("resolve", models.OutcomeError)
		return ResolveNoop, dErrors.Wrap(err, dErrors.CodeInternal, "commit resolve plan")
	}

	// The graph write stands from here on; later failures are reported, not
	// rolled back.
	pivot, err := s.pivotRecord(ctx, pivotRef, plan, records)
	if err != nil {
		return ResolveApplied, s.reportAfterCommit(ctx, summary, actor, err)
	}

	result, err := s.matcher.PerformMatch(ctx, pivot, []string{pivot.ID})
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeUnavailable, "re-match after resolve")
		return ResolveApplied, s.reportAfterCommit(ctx, summary, actor, err)
	}
	result.DropResolvedTargets(s.resolvedGoldens(req, plan))

	if err := s.reconciler.Reconcile(ctx, pivot, result, req.RemoveFlag, req.FlagType); err != nil {
		return ResolveApplied, s.reportAfterCommit(ctx, summary, actor, err)
	}

	save := bundle.New()
	save.Add(pivot)
	if err := s.commit(ctx, save); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "save record after tag reconciliation")
		return ResolveApplied, s.reportAfterCommit(ctx, summary, actor, err)
	}

	s.recorder.Record(ctx, summary, actor)
	s.recordMutation("resolve", models.OutcomeSuccess)
	return ResolveApplied, nil
}

// clearIssueFlags handles the no-reassignment removeFlag path: both issue
// tags come off the stored record and the human-adjudication tag goes on.
func (s *Service) clearIssueFlags(ctx context.Context, pivotRef models.Ref, summary *models.Summary, actor audit.Actor) error {
	for _, code := range []string{models.CodePotentialMatches, models.CodeConflictMatches} {
		tag := models.Tag{System: s.systems.MatchIssues, Code: code}
		if err := s.store.DeleteTag(ctx, pivotRef, tag); err != nil {
			return dErrors.Wrapf(err, dErrors.CodeInternal, "remove %s tag", code)
		}
	}

	pivot, err := s.store.GetRecord(ctx, pivotRef)
	if err != nil {
		return err
	}
	pivot.EnsureTag(models.Tag{
		System:  s.systems.HumanAdjudication,
		Code:    models.CodeHumanAdjudication,
		Display: models.DisplayHumanAdjudication,
	})

	save := bundle.New()
	save.Add(pivot)
	if err := s.commit(ctx, save); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save record after flag removal")
	}

	summary.Add(&models.OperationSummary{Editing: pivotRef, Outcome: models.OutcomeSuccess})
	s.recorder.Record(ctx, summary, actor)
	s.recordMutation("resolve", models.OutcomeSuccess)
	return nil
}

// pivotRecord locates the record under review: staged in the plan if it
// moved, in the fetched batch otherwise, from the store as a last resort.
func (s *Service) pivotRecord(ctx context.Context, pivotRef models.Ref, plan *models.MutationPlan, fetched []*models.Record) (*models.Record, error) {
	if rec, ok := plan.Get(pivotRef); ok {
		return rec, nil
	}
	for _, rec := range fetched {
		if rec.Ref() == pivotRef {
			return rec, nil
		}
	}
	return s.store.GetRecord(ctx, pivotRef)
}

// resolvedGoldens collects the golden records the pivot was explicitly
// assigned to, so the follow-up match does not resurface them as issues.
func (s *Service) resolvedGoldens(req *models.ResolveRequest, plan *models.MutationPlan) map[string]bool {
	resolved := make(map[string]bool)
	for _, res := range req.Resolves {
		if res.ID != req.ResolvingFrom || !res.NeedsChange() {
			continue
		}
		if target := res.Target(); !target.IsNew() {
			resolved[target.ExistingID()] = true
			continue
		}
		member, ok := plan.Get(models.Ref{Type: s.recordType, ID: res.ID})
		if !ok {
			continue
		}
		if golden, ok := member.ReferTarget(); ok {
			resolved[golden.ID] = true
		}
	}
	return resolved
}

func (s *Service) reportAfterCommit(ctx context.Context, summary *models.Summary, actor audit.Actor, err error) error {
	s.logger.ErrorContext(ctx, "post-commit step failed", "operation", summary.Operation, "error", err)
	s.recorder.Record(ctx, summary, actor)
	s.recordMutation(summary.Operation, models.OutcomeSuccess)
	return err
}
