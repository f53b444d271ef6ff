package matcher

import (
	"context"
	"sync"

	"linkage/internal/match/models"
	dErrors "linkage/pkg/domain-errors"
)

// Fake is an in-memory Matcher and Rematcher for tests. Results are keyed by
// source record ID.
type Fake struct {
	mu         sync.Mutex
	Results    map[string]*Result
	Responses  map[string]Response
	FailFor    map[string]bool
	Submitted  []string
	MatchCalls []string
}

// NewFake creates a Fake with empty result sets.
func NewFake() *Fake {
	return &Fake{
		Results:   make(map[string]*Result),
		Responses: make(map[string]Response),
		FailFor:   make(map[string]bool),
	}
}

// SetResult registers the engine output for a source record.
func (f *Fake) SetResult(sourceID string, result *Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Results[sourceID] = result
}

func (f *Fake) PerformMatch(_ context.Context, source *models.Record, _ []string) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MatchCalls = append(f.MatchCalls, source.ID)
	if f.FailFor[source.ID] {
		return nil, dErrors.New(dErrors.CodeUnavailable, "matching engine unavailable")
	}
	if r, ok := f.Results[source.ID]; ok {
		// Copy category slices so callers can filter without mutating the
		// registered result.
		return &Result{
			Auto:      append([]Candidate(nil), r.Auto...),
			Potential: append([]Candidate(nil), r.Potential...),
			Conflicts: append([]Candidate(nil), r.Conflicts...),
		}, nil
	}
	return &Result{}, nil
}

func (f *Fake) Resubmit(_ context.Context, clientID string, record *models.Record) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submitted = append(f.Submitted, record.ID)
	if f.FailFor[record.ID] {
		return nil, dErrors.New(dErrors.CodeUnavailable, "re-match failed")
	}
	if resp, ok := f.Responses[record.ID]; ok {
		return resp, nil
	}
	return Response{record.ID: "rematched"}, nil
}
