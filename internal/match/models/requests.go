package models

import (
	"strings"

	dErrors "linkage/pkg/domain-errors"
)

// NewGoldenSentinel is the wire prefix clients send in place of a golden
// record ID to request a brand-new golden record. It is translated into a
// ReassignTarget at the boundary and never consulted again.
const NewGoldenSentinel = "New CR ID"

// ReassignTarget is the discriminated destination of a resolution: either an
// existing golden record or a freshly created one.
type ReassignTarget struct {
	toNew bool
	id    string
}

func ReassignToExisting(id string) ReassignTarget {
	return ReassignTarget{id: id}
}

func ReassignToNew() ReassignTarget {
	return ReassignTarget{toNew: true}
}

// IsNew reports whether a new golden record must be synthesized.
func (t ReassignTarget) IsNew() bool {
	return t.toNew
}

// ExistingID returns the target golden record ID when IsNew is false.
func (t ReassignTarget) ExistingID() string {
	return t.id
}

// Resolution reassigns one member record from its current golden record
// (ouid) to a target golden record (uid).
type Resolution struct {
	ID        string `json:"id"`
	OldGolden string `json:"ouid"`
	NewGolden string `json:"uid"`
}

// Target decodes the wire sentinel into a discriminated reassignment target.
func (r Resolution) Target() ReassignTarget {
	if strings.HasPrefix(r.NewGolden, NewGoldenSentinel) {
		return ReassignToNew()
	}
	return ReassignToExisting(r.NewGolden)
}

// NeedsChange reports whether this resolution moves the member at all.
func (r Resolution) NeedsChange() bool {
	return r.NewGolden != r.OldGolden
}

// ResolveRequest is the POST /resolve-match-issue body.
type ResolveRequest struct {
	Resolves      []Resolution `json:"resolves"`
	ResolvingFrom string       `json:"resolvingFrom"`
	RemoveFlag    bool         `json:"removeFlag"`
	FlagType      string       `json:"flagType"`
}

// Validate checks request shape before any I/O.
func (r *ResolveRequest) Validate() error {
	if r.ResolvingFrom == "" {
		return dErrors.New(dErrors.CodeValidation, "resolvingFrom is required")
	}
	if r.FlagType != "" && r.FlagType != CodePotentialMatches && r.FlagType != CodeConflictMatches {
		return dErrors.Newf(dErrors.CodeValidation, "unknown flagType %q", r.FlagType)
	}
	for _, res := range r.Resolves {
		if res.ID == "" || res.OldGolden == "" || res.NewGolden == "" {
			return dErrors.New(dErrors.CodeValidation, "each resolve entry requires id, ouid and uid")
		}
	}
	return nil
}

// NeedsGraphChange reports whether any resolution actually moves a member.
func (r *ResolveRequest) NeedsGraphChange() bool {
	for _, res := range r.Resolves {
		if res.NeedsChange() {
			return true
		}
	}
	return false
}

// UnbreakPair names two member records whose severance should be reversed.
type UnbreakPair struct {
	ID1 string `json:"id1"`
	ID2 string `json:"id2"`
}
