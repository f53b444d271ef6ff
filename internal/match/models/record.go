package models

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// LinkKind is the type of a directed edge between records.
type LinkKind string

const (
	// LinkRefer points a member record at its current golden record.
	LinkRefer LinkKind = "refer"
	// LinkSeeAlso is the inverse: golden record to member record.
	LinkSeeAlso LinkKind = "seealso"
	// LinkReplacedBy tombstones a retired golden record, pointing at its
	// successor.
	LinkReplacedBy LinkKind = "replaced-by"
)

// Link is a directed, typed edge owned by the record it is attached to.
type Link struct {
	Kind  LinkKind `json:"type"`
	Other Ref      `json:"other"`
}

// Tag is a match-status annotation. At most one tag per (System, Code) pair.
type Tag struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// Identifier associates a record with an ID issued by a source system.
type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// Tag codes and displays used by the match workflow.
const (
	CodePotentialMatches  = "potentialMatches"
	CodeConflictMatches   = "conflictMatches"
	CodeHumanAdjudication = "humanAdjudication"
	CodeGoldenRecord      = "goldenRecord"

	DisplayPotentialMatches  = "Potential Matches"
	DisplayConflictMatches   = "Conflict On Match"
	DisplayHumanAdjudication = "Matched By Human"
	DisplayGoldenRecord      = "Golden Record"
)

// Systems holds the namespace URIs annotations are issued under. Populated
// from configuration at startup.
type Systems struct {
	MatchIssues       string
	HumanAdjudication string
	ClientID          string
	InternalID        string
	BrokenMatch       string
	GoldenRecord      string
}

// Record is a source (member) or synthetic (golden) record in the identity
// graph. Golden records carry the golden-record tag; member records carry a
// client-source tag and exactly one refer link once the graph is consistent.
type Record struct {
	Type        string       `json:"resourceType"`
	ID          string       `json:"id"`
	Gender      string       `json:"gender,omitempty"`
	Family      string       `json:"family,omitempty"`
	Given       []string     `json:"given,omitempty"`
	BirthDate   string       `json:"birthDate,omitempty"`
	Identifiers []Identifier `json:"identifier,omitempty"`
	Links       []Link       `json:"link,omitempty"`
	Tags        []Tag        `json:"tag,omitempty"`
	// BrokenMatches records manually severed associations to other member
	// records. Intended to be symmetric across both records.
	BrokenMatches []Ref `json:"brokenMatch,omitempty"`
}

// NewGoldenRecord creates a fresh golden record with a generated identifier
// and the golden-record tag. It starts with no members; the planner attaches
// seealso links before the record enters a plan.
func NewGoldenRecord(recordType string, systems Systems) *Record {
	return &Record{
		Type: recordType,
		ID:   uuid.NewString(),
		Tags: []Tag{{
			System:  systems.GoldenRecord,
			Code:    CodeGoldenRecord,
			Display: DisplayGoldenRecord,
		}},
	}
}

// Ref returns this record's typed reference.
func (r *Record) Ref() Ref {
	return Ref{Type: r.Type, ID: r.ID}
}

// ResourceRef implements bundle.Resource.
func (r *Record) ResourceRef() Ref {
	return r.Ref()
}

// IsGolden reports whether the record carries the golden-record tag.
func (r *Record) IsGolden() bool {
	for _, t := range r.Tags {
		if t.Code == CodeGoldenRecord {
			return true
		}
	}
	return false
}

// GivenName joins the given-name parts for display rows.
func (r *Record) GivenName() string {
	return strings.Join(r.Given, " ")
}

// FindTag returns the first tag in the given system, or false.
func (r *Record) FindTag(system string) (Tag, bool) {
	for _, t := range r.Tags {
		if t.System == system {
			return t, true
		}
	}
	return Tag{}, false
}

// HasTag reports whether a (system, code) tag is present.
func (r *Record) HasTag(system, code string) bool {
	for _, t := range r.Tags {
		if t.System == system && t.Code == code {
			return true
		}
	}
	return false
}

// EnsureTag adds the tag unless an identical (system, code) pair exists.
func (r *Record) EnsureTag(tag Tag) {
	if r.HasTag(tag.System, tag.Code) {
		return
	}
	r.Tags = append(r.Tags, tag)
}

// RemoveTag deletes the (system, code) tag if present and reports whether a
// removal happened.
func (r *Record) RemoveTag(system, code string) bool {
	for i, t := range r.Tags {
		if t.System == system && t.Code == code {
			r.Tags = slices.Delete(r.Tags, i, i+1)
			return true
		}
	}
	return false
}

// ClientSource returns the client-source tag code identifying the system
// that contributed this record.
func (r *Record) ClientSource(systems Systems) (string, bool) {
	tag, ok := r.FindTag(systems.ClientID)
	if !ok {
		return "", false
	}
	return tag.Code, true
}

// SourceIdentifier returns the record's identifier value in the internal
// identifier namespace; used as the canonical key for matrix rows.
func (r *Record) SourceIdentifier(systems Systems) (string, bool) {
	for _, ident := range r.Identifiers {
		if strings.Contains(systems.InternalID, ident.System) && ident.Value != "" {
			return ident.Value, true
		}
	}
	return "", false
}

// LinksOfKind returns all links of the given kind.
func (r *Record) LinksOfKind(kind LinkKind) []Link {
	var out []Link
	for _, l := range r.Links {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	return out
}

// ReferTarget returns the golden record this member currently refers to.
// Records mid-repair can hold several refer links; this returns the first.
func (r *Record) ReferTarget() (Ref, bool) {
	for _, l := range r.Links {
		if l.Kind == LinkRefer {
			return l.Other, true
		}
	}
	return Ref{}, false
}

// AddLink appends a link unless an identical one is present.
func (r *Record) AddLink(kind LinkKind, other Ref) {
	for _, l := range r.Links {
		if l.Kind == kind && l.Other == other {
			return
		}
	}
	r.Links = append(r.Links, Link{Kind: kind, Other: other})
}

// RemoveLinksTo drops every link pointing at the given record, regardless of
// kind, and reports whether anything was removed.
func (r *Record) RemoveLinksTo(other Ref) bool {
	removed := false
	r.Links = slices.DeleteFunc(r.Links, func(l Link) bool {
		if l.Other == other {
			removed = true
			return true
		}
		return false
	})
	return removed
}

// SetReferLink replaces all existing links with a single refer link. Used
// when a member is reassigned to a, or repartitioned under a new, golden
// record.
func (r *Record) SetReferLink(golden Ref) {
	r.Links = []Link{{Kind: LinkRefer, Other: golden}}
}

// HasBrokenMatch reports whether a severance marker referencing other exists.
func (r *Record) HasBrokenMatch(other Ref) bool {
	return slices.Contains(r.BrokenMatches, other)
}

// AddBrokenMatch records a severed association, idempotently.
func (r *Record) AddBrokenMatch(other Ref) {
	if !r.HasBrokenMatch(other) {
		r.BrokenMatches = append(r.BrokenMatches, other)
	}
}

// RemoveBrokenMatch removes the severance marker referencing other and
// reports whether it existed.
func (r *Record) RemoveBrokenMatch(other Ref) bool {
	before := len(r.BrokenMatches)
	r.BrokenMatches = slices.DeleteFunc(r.BrokenMatches, func(ref Ref) bool {
		return ref == other
	})
	return len(r.BrokenMatches) != before
}

// Clone deep-copies the record so planners can stage changes without
// mutating fetched state.
func (r *Record) Clone() *Record {
	clone := *r
	clone.Given = slices.Clone(r.Given)
	clone.Identifiers = slices.Clone(r.Identifiers)
	clone.Links = slices.Clone(r.Links)
	clone.Tags = slices.Clone(r.Tags)
	clone.BrokenMatches = slices.Clone(r.BrokenMatches)
	return &clone
}
