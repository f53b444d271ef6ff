package models

// Outcome is the audit outcome code for one edited record.
type Outcome string

const (
	OutcomeSuccess Outcome = "0"
	OutcomeInvalid Outcome = "4"
	OutcomeError   Outcome = "8"
)

// OperationSummary captures what happened to one record during a mutation,
// for auditing.
type OperationSummary struct {
	// Editing is the record the operation mutated.
	Editing Ref
	// PriorGolden is the golden record the member referred to before the
	// operation (break), or the counterpart's golden (unbreak).
	PriorGolden Ref
	// Related lists counterpart member records: the members broken away
	// from Editing, or the members it was unbroken from.
	Related []Ref
	Outcome Outcome
	Desc    string
}

// Summary aggregates per-record outcomes for one operation. It replaces
// implicit shared mutable failure flags: the caller commits graph writes only
// when OK reports true, but audits the summary either way.
type Summary struct {
	Operation string
	Entries   []*OperationSummary
	// blocked is set when validation or integrity problems mean no graph
	// write may happen.
	blocked bool
}

// NewSummary creates a summary for the named operation.
func NewSummary(operation string) *Summary {
	return &Summary{Operation: operation}
}

// Add appends one record's outcome and returns it for further annotation.
func (s *Summary) Add(entry *OperationSummary) *OperationSummary {
	s.Entries = append(s.Entries, entry)
	return entry
}

// Find returns the entry editing the given record, if present.
func (s *Summary) Find(editing Ref) (*OperationSummary, bool) {
	for _, e := range s.Entries {
		if e.Editing == editing {
			return e, true
		}
	}
	return nil, false
}

// Block marks the whole operation as non-committable.
func (s *Summary) Block() {
	s.blocked = true
}

// OK reports whether graph writes may be committed.
func (s *Summary) OK() bool {
	return !s.blocked
}

// MarkAll sets the outcome on every entry; used when a batch-level failure
// (such as a rejected store write) invalidates all records at once.
func (s *Summary) MarkAll(outcome Outcome, desc string) {
	for _, e := range s.Entries {
		e.Outcome = outcome
		e.Desc = desc
	}
}
