package models

// MutationPlan is the staged set of record states computed by the planner.
// Entries are keyed by record reference; staging the same record twice
// replaces the earlier state. A plan is applied atomically or not at all.
type MutationPlan struct {
	order   []Ref
	entries map[Ref]*Record
	// existing marks golden records that were already persisted before this
	// plan, so commit handling can distinguish them from freshly synthesized
	// ones.
	existing map[Ref]bool
}

// NewMutationPlan creates an empty plan.
func NewMutationPlan() *MutationPlan {
	return &MutationPlan{
		entries:  make(map[Ref]*Record),
		existing: make(map[Ref]bool),
	}
}

// Stage adds or replaces a record state in the plan.
func (p *MutationPlan) Stage(record *Record) {
	ref := record.Ref()
	if _, ok := p.entries[ref]; !ok {
		p.order = append(p.order, ref)
	}
	p.entries[ref] = record
}

// StageExisting stages a record that is already persisted in the store.
func (p *MutationPlan) StageExisting(record *Record) {
	p.Stage(record)
	p.existing[record.Ref()] = true
}

// IsExisting reports whether the staged record predates this plan.
func (p *MutationPlan) IsExisting(ref Ref) bool {
	return p.existing[ref]
}

// Get returns the staged state for ref, if any.
func (p *MutationPlan) Get(ref Ref) (*Record, bool) {
	r, ok := p.entries[ref]
	return r, ok
}

// Records returns staged records in staging order.
func (p *MutationPlan) Records() []*Record {
	out := make([]*Record, 0, len(p.order))
	for _, ref := range p.order {
		out = append(out, p.entries[ref])
	}
	return out
}

// Len returns the number of staged records.
func (p *MutationPlan) Len() int {
	return len(p.order)
}
