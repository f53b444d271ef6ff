package planner

import (
	"slices"

	"linkage/internal/match/models"
)

// MemberBreak is the per-member audit data a break produces.
type MemberBreak struct {
	// PriorGolden is the golden record the member referred to before the
	// break.
	PriorGolden models.Ref
	// Broken lists the co-linked members the break severed this member
	// from.
	Broken []models.Ref
	// MissingGolden marks that a golden record this member links to was
	// absent from the store, which blocks the whole batch.
	MissingGolden bool
}

// BreakPlan is the staged result of PlanBreak. Symmetrize completes it once
// the severed counterparts have been fetched.
type BreakPlan struct {
	Plan *models.MutationPlan
	// PerMember holds audit data keyed by requested member.
	PerMember map[models.Ref]*MemberBreak
	// Members lists requested members in request order.
	Members []models.Ref
	// Counterparts are the severed members outside the request that need a
	// reciprocal marker; the service fetches them and calls Symmetrize.
	Counterparts []models.Ref
	// MissingGolden blocks committing: some golden record was absent.
	MissingGolden bool

	requested map[models.Ref]bool
}

type partition struct {
	golden  *models.Record
	members []models.Ref
}

// PlanBreak repartitions the requested members away from their current
// golden records. Members sharing a current golden land together under one
// new golden; members of that golden outside the request get a broken-match
// marker. Callers must have validated that every member carries at least one
// refer link.
func (p *Planner) PlanBreak(members []*models.Record, goldens map[models.Ref]*models.Record, requested map[models.Ref]bool) *BreakPlan {
	bp := &BreakPlan{
		Plan:      models.NewMutationPlan(),
		PerMember: make(map[models.Ref]*MemberBreak, len(members)),
		requested: requested,
	}

	working := make([]*models.Record, 0, len(members))
	for _, m := range members {
		clone := m.Clone()
		working = append(working, clone)
		prior, _ := clone.ReferTarget()
		bp.PerMember[clone.Ref()] = &MemberBreak{PriorGolden: prior}
		bp.Members = append(bp.Members, clone.Ref())
	}

	// Partition requested members by current golden. One new golden per
	// distinct current golden; a member with several refer links (a
	// pre-existing anomaly) lands in every partition for now and is
	// disambiguated below.
	parts := make(map[models.Ref]*partition)
	var partOrder []models.Ref
	for _, m := range working {
		for _, link := range m.LinksOfKind(models.LinkRefer) {
			part, ok := parts[link.Other]
			if !ok {
				part = &partition{golden: models.NewGoldenRecord(m.Type, p.systems)}
				parts[link.Other] = part
				partOrder = append(partOrder, link.Other)
			}
			part.golden.AddLink(models.LinkSeeAlso, m.Ref())
			part.members = append(part.members, m.Ref())
		}
	}

	// Mark severed relationships: every co-linked member that does not share
	// the member's partition gets a one-directional marker here; the
	// reciprocal side is added by Symmetrize after a second fetch.
	counterpartSeen := make(map[models.Ref]bool)
	for _, m := range working {
		mb := bp.PerMember[m.Ref()]
		for _, link := range m.LinksOfKind(models.LinkRefer) {
			golden, ok := goldens[link.Other]
			if !ok {
				mb.MissingGolden = true
				bp.MissingGolden = true
				continue
			}
			part := parts[link.Other]
			for _, gl := range golden.LinksOfKind(models.LinkSeeAlso) {
				if slices.Contains(part.members, gl.Other) {
					continue
				}
				m.AddBrokenMatch(gl.Other)
				if !slices.Contains(mb.Broken, gl.Other) {
					mb.Broken = append(mb.Broken, gl.Other)
				}
				if !requested[gl.Other] && !counterpartSeen[gl.Other] {
					counterpartSeen[gl.Other] = true
					bp.Counterparts = append(bp.Counterparts, gl.Other)
				}
			}
		}
	}

	// Detach requested members from the goldens that survive. A golden left
	// with no links at all is dropped from the plan instead of being
	// persisted empty.
	for _, gRef := range partOrder {
		golden, ok := goldens[gRef]
		if !ok {
			continue
		}
		work := golden.Clone()
		removed := false
		for _, m := range working {
			if work.RemoveLinksTo(m.Ref()) {
				removed = true
			}
		}
		if !removed {
			continue
		}
		if len(work.Links) == 0 {
			continue
		}
		bp.Plan.StageExisting(work)
	}

	// Reassign refer links. The anomaly case picks the partition with the
	// most members; ties keep the first encountered.
	for _, m := range working {
		refs := m.LinksOfKind(models.LinkRefer)
		if len(refs) == 0 {
			continue
		}
		chosen := parts[refs[0].Other]
		for _, l := range refs[1:] {
			if part := parts[l.Other]; len(part.members) > len(chosen.members) {
				chosen = part
			}
		}
		for _, l := range refs {
			if part := parts[l.Other]; part != chosen {
				part.golden.RemoveLinksTo(m.Ref())
			}
		}
		m.SetReferLink(chosen.golden.Ref())
	}

	// Keep only new goldens that ended up with members.
	for _, gRef := range partOrder {
		part := parts[gRef]
		if len(part.golden.LinksOfKind(models.LinkSeeAlso)) == 0 {
			continue
		}
		bp.Plan.Stage(part.golden)
	}

	for _, m := range working {
		bp.Plan.StageExisting(m)
	}

	return bp
}

// Symmetrize adds the reciprocal broken-match marker onto each fetched
// counterpart that does not already hold one, making the severance visible
// from both sides.
func (bp *BreakPlan) Symmetrize(counterparts []*models.Record) {
	for _, c := range counterparts {
		if bp.requested[c.Ref()] {
			continue
		}
		work := c.Clone()
		changed := false
		for _, mRef := range bp.Members {
			m, ok := bp.Plan.Get(mRef)
			if !ok {
				continue
			}
			if m.HasBrokenMatch(c.Ref()) && !work.HasBrokenMatch(mRef) {
				work.AddBrokenMatch(mRef)
				changed = true
			}
		}
		if changed {
			bp.Plan.StageExisting(work)
		}
	}
}
