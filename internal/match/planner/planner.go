// Package planner computes the exact set of record changes a graph mutation
// needs. It is pure logic: records in, mutation plan out, no I/O. The service
// layer fetches state, commits plans and writes audit.
package planner

import (
	"linkage/internal/match/models"
	dErrors "linkage/pkg/domain-errors"
)

// Planner derives mutation plans from current graph state.
type Planner struct {
	systems models.Systems
}

// New creates a Planner stamping annotations under the given namespaces.
func New(systems models.Systems) *Planner {
	return &Planner{systems: systems}
}

// workspace memoizes cloned working copies so several steps of one plan
// mutate the same staged state instead of clobbering each other.
type workspace struct {
	plan    *models.MutationPlan
	fetched map[models.Ref]*models.Record
}

func newWorkspace(records []*models.Record) *workspace {
	ws := &workspace{
		plan:    models.NewMutationPlan(),
		fetched: make(map[models.Ref]*models.Record, len(records)),
	}
	for _, r := range records {
		ws.fetched[r.Ref()] = r
	}
	return ws
}

// checkout returns the staged working copy for ref, cloning and staging the
// fetched record on first access.
func (ws *workspace) checkout(ref models.Ref) (*models.Record, bool) {
	if staged, ok := ws.plan.Get(ref); ok {
		return staged, true
	}
	fetched, ok := ws.fetched[ref]
	if !ok {
		return nil, false
	}
	clone := fetched.Clone()
	ws.plan.StageExisting(clone)
	return clone, true
}

// PlanResolve computes the reassignment plan for resolve-match-issue.
// records must contain every member and golden named by a resolution that
// changes anything; a missing record is an integrity failure. Resolutions
// whose target equals the current golden are skipped, so a plan can come out
// empty.
func (p *Planner) PlanResolve(recordType string, records []*models.Record, resolutions []models.Resolution) (*models.MutationPlan, error) {
	ws := newWorkspace(records)

	for _, res := range resolutions {
		if !res.NeedsChange() {
			continue
		}

		memberRef := models.Ref{Type: recordType, ID: res.ID}
		member, ok := ws.checkout(memberRef)
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "member record %s not found", memberRef)
		}

		oldRef := models.Ref{Type: recordType, ID: res.OldGolden}
		oldGolden, ok := ws.checkout(oldRef)
		if !ok {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "golden record %s not found", oldRef)
		}

		var target *models.Record
		if res.Target().IsNew() {
			target = models.NewGoldenRecord(recordType, p.systems)
			ws.plan.Stage(target)
		} else {
			targetRef := models.Ref{Type: recordType, ID: res.Target().ExistingID()}
			target, ok = ws.checkout(targetRef)
			if !ok {
				return nil, dErrors.Newf(dErrors.CodeNotFound, "golden record %s not found", targetRef)
			}
		}

		// Move the member: drop its edge to the old golden, point it at the
		// target.
		member.RemoveLinksTo(oldRef)
		member.AddLink(models.LinkRefer, target.Ref())

		// Detach from the old golden. A golden left without members becomes
		// a tombstone pointing at its successor; it is never deleted, so
		// history stays traceable.
		oldGolden.RemoveLinksTo(memberRef)
		if len(oldGolden.Links) == 0 {
			oldGolden.AddLink(models.LinkReplacedBy, target.Ref())
		}

		target.AddLink(models.LinkSeeAlso, memberRef)
	}

	return ws.plan, nil
}
