package service

import (
	"context"
	"fmt"
	"strings"

	"linkage/internal/audit"
	"linkage/internal/match/bundle"
	"linkage/internal/match/models"
	dErrors "linkage/pkg/domain-errors"
)

// Break severs the requested member records from their current golden
// records, regrouping them under fresh golden records and marking the severed
// associations on both sides. Validation is all-or-nothing: one malformed or
// unlinked member fails the whole request before any write.
//
// Returned diagnostics are human-readable problem descriptions for the
// response body; they are non-empty only alongside a non-nil error.
func (s *Service) Break(ctx context.Context, ids []string, actor audit.Actor) (diagnostics []string, err error) {
	summary := models.NewSummary("break")

	var (
		memberRefs   []models.Ref
		requested    = make(map[models.Ref]bool)
		notProcessed []string
	)
	for _, id := range ids {
		ref, err := models.ParseRef(id)
		if err != nil {
			notProcessed = append(notProcessed, id)
			continue
		}
		if requested[ref] {
			continue
		}
		requested[ref] = true
		memberRefs = append(memberRefs, ref)
	}

	members, err := s.fetchByRefs(ctx, memberRefs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch records for break")
	}

	var noLink []models.Ref
	for _, ref := range memberRefs {
		member, ok := members[ref]
		if !ok {
			notProcessed = append(notProcessed, ref.String())
			delete(requested, ref)
			continue
		}
		if len(member.LinksOfKind(models.LinkRefer)) == 0 {
			noLink = append(noLink, ref)
			summary.Add(&models.OperationSummary{
				Editing: ref,
				Outcome: models.OutcomeInvalid,
				Desc:    "record has no golden record link",
			})
		}
	}

	if len(notProcessed) > 0 || len(noLink) > 0 {
		if len(notProcessed) > 0 {
			diagnostics = append(diagnostics,
				fmt.Sprintf("IDs %s not processed: invalid ID format or record not found", strings.Join(notProcessed, ", ")))
		}
		for _, ref := range noLink {
			diagnostics = append(diagnostics,
				fmt.Sprintf("record %s has no golden record link", ref))
		}
		summary.Block()
		s.recorder.Record(ctx, summary, actor)
		s.recordMutation("break", models.OutcomeInvalid)
		return diagnostics, dErrors.New(dErrors.CodeValidation, "break request failed validation")
	}

	var lockKeys []string
	for _, ref := range memberRefs {
		for _, link := range members[ref].LinksOfKind(models.LinkRefer) {
			lockKeys = append(lockKeys, link.Other.ID)
		}
	}
	unlock := s.goldenLocks.Lock(lockKeys)
	defer unlock()

	// Re-read under the lock so the plan is built against current state.
	members, err = s.fetchByRefs(ctx, memberRefs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch records for break")
	}
	var (
		memberList []*models.Record
		goldenRefs []models.Ref
	)
	for _, ref := range memberRefs {
		member, ok := members[ref]
		if !ok {
			return s.breakIntegrityFailure(ctx, summary, actor,
				dErrors.Newf(dErrors.CodeInternal, "record %s disappeared during break", ref))
		}
		memberList = append(memberList, member)
		for _, link := range member.LinksOfKind(models.LinkRefer) {
			goldenRefs = append(goldenRefs, link.Other)
		}
	}
	goldens, err := s.fetchByRefs(ctx, goldenRefs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch golden records for break")
	}

	bp := s.planner.PlanBreak(memberList, goldens, requested)
	for _, ref := range bp.Members {
		mb := bp.PerMember[ref]
		entry := &models.OperationSummary{
			Editing:     ref,
			PriorGolden: mb.PriorGolden,
			Related:     mb.Broken,
			Outcome:     models.OutcomeSuccess,
		}
		if mb.MissingGolden {
			entry.Outcome = models.OutcomeError
			entry.Desc = "golden record not found in the record store"
		}
		summary.Add(entry)
	}
	if bp.MissingGolden {
		return s.breakIntegrityFailure(ctx, summary, actor,
			dErrors.New(dErrors.CodeInternal, "a linked golden record was not found in the record store"))
	}

	counterparts, err := s.fetchByRefs(ctx, bp.Counterparts)
	if err != nil {
		return s.breakIntegrityFailure(ctx, summary, actor,
			dErrors.Wrap(err, dErrors.CodeUnavailable, "fetch severed counterparts"))
	}
	counterpartList := make([]*models.Record, 0, len(bp.Counterparts))
	for _, ref := range bp.Counterparts {
		if rec, ok := counterparts[ref]; ok {
			counterpartList = append(counterpartList, rec)
		}
	}
	bp.Symmetrize(counterpartList)

	if err := s.commit(ctx, bundle.FromPlan(bp.Plan)); err != nil {
		summary.MarkAll(models.OutcomeError, "Error occurred while saving changes")
		s.recorder.Record(ctx, summary, actor)
		s.recordMutation("break", models.OutcomeError)
		return []string{"Internal error occurred while saving changes"},
			dErrors.Wrap(err, dErrors.CodeInternal, "commit break plan")
	}

	s.recorder.Record(ctx, summary, actor)
	s.recordMutation("break", models.OutcomeSuccess)
	return nil, nil
}

func (s *Service) breakIntegrityFailure(ctx context.Context, summary *models.Summary, actor audit.Actor, err error) ([]string, error) {
	summary.Block()
	s.recorder.Record(ctx, summary, actor)
	s.recordMutation("break", models.OutcomeError)
	return []string{"Internal error occurred while processing the break request"}, err
}

// fetchByRefs reads the given records from the store, bypassing any cache.
// Missing refs are absent from the result, not an error.
func (s *Service) fetchByRefs(ctx context.Context, refs []models.Ref) (map[models.Ref]*models.Record, error) {
	byType := make(map[string][]string)
	seen := make(map[models.Ref]bool)
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	out := make(map[models.Ref]*models.Record, len(seen))
	for recordType, ids := range byType {
		records, err := s.store.FindByIDs(ctx, recordType, ids, true)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			out[rec.Ref()] = rec
		}
	}
	return out, nil
}
