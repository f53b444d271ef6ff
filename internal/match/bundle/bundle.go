// Package bundle packages staged mutations into one atomic batch write
// request for the record store. Every entry is an upsert by identifier, so a
// bundle is safe to retry; atomicity beyond a single batch is the store's
// concern.
package bundle

import "linkage/internal/match/models"

// Resource is anything addressable by a record reference that can be
// upserted into the store.
type Resource interface {
	ResourceRef() models.Ref
}

// Entry is one upsert in a batch.
type Entry struct {
	Method   string
	URL      string
	Resource Resource
}

// Bundle is one atomic multi-record write request.
type Bundle struct {
	Entries []Entry
}

// New creates an empty bundle.
func New() *Bundle {
	return &Bundle{}
}

// Add stages an upsert-by-identifier for the resource.
func (b *Bundle) Add(res Resource) {
	ref := res.ResourceRef()
	b.Entries = append(b.Entries, Entry{
		Method:   "PUT",
		URL:      ref.String(),
		Resource: res,
	})
}

// Len returns the number of entries.
func (b *Bundle) Len() int {
	return len(b.Entries)
}

// FromPlan converts a mutation plan into a batch write. The planner is
// responsible for the plan being complete and internally consistent before
// this point.
func FromPlan(plan *models.MutationPlan) *Bundle {
	b := New()
	for _, rec := range plan.Records() {
		b.Add(rec)
	}
	return b
}
