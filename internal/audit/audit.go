// Package audit converts operation summaries into append-only audit entries
// and persists them independently of the primary mutation, so operators can
// reconstruct history even for failed attempts.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"linkage/internal/match/models"
	"linkage/internal/platform/metrics"
)

// Related names one counterpart reference inside an entry.
type Related struct {
	Name      string `json:"name"`
	Reference string `json:"reference"`
}

// Entry is one audit record: a single edited record within one operation.
// Entries are append-only and never mutated or deleted.
type Entry struct {
	ID            string    `json:"id"`
	Operation     string    `json:"operation"`
	EditingRecord string    `json:"editingRecord"`
	Related       []Related `json:"related,omitempty"`
	Outcome       string    `json:"outcome"`
	OutcomeDesc   string    `json:"outcomeDesc"`
	Actor         string    `json:"actor,omitempty"`
	Address       string    `json:"address,omitempty"`
	RecordedAt    time.Time `json:"recorded"`
}

// ResourceRef implements bundle.Resource so entries can travel in batch
// writes to the record store.
func (e *Entry) ResourceRef() models.Ref {
	return models.Ref{Type: "AuditEvent", ID: e.ID}
}

// Store persists audit entries. Implementations must be append-only.
type Store interface {
	Append(ctx context.Context, entries []*Entry) error
}

// Actor identifies who requested an operation and from where.
type Actor struct {
	Username string
	Address  string
}

// Recorder converts operation summaries to entries and persists them.
// Persistence is best-effort: failures are logged and counted but never
// propagate into the primary operation's result.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides the timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder persisting through the given store.
func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists one entry per summarized record. An empty summary is a
// no-op.
func (r *Recorder) Record(ctx context.Context, summary *models.Summary, actor Actor) {
	entries := EntriesFromSummary(summary, actor, r.now())
	if len(entries) == 0 {
		return
	}
	if err := r.store.Append(ctx, entries); err != nil {
		r.logger.ErrorContext(ctx, "audit persistence failed",
			"operation", summary.Operation,
			"entries", len(entries),
			"error", err,
		)
		if r.metrics != nil {
			r.metrics.AuditFailures.Inc()
		}
	}
}

// related-reference names per operation: prior golden first, counterpart
// members second. Kept stable for downstream audit consumers.
var relatedNames = map[string][2]string{
	"resolve": {"oldCRUID", "resolvedTo"},
	"break":   {"oldCRUID", "breakFrom"},
	"unbreak": {"unBreakFromCRUID", "unBreakFromResource"},
}

// EntriesFromSummary converts a summary into audit entries, one per edited
// record.
func EntriesFromSummary(summary *models.Summary, actor Actor, recordedAt time.Time) []*Entry {
	names, ok := relatedNames[summary.Operation]
	if !ok {
		names = [2]string{"prior", "related"}
	}

	entries := make([]*Entry, 0, len(summary.Entries))
	for _, oper := range summary.Entries {
		outcome := oper.Outcome
		desc := oper.Desc
		if outcome == "" {
			outcome = models.OutcomeSuccess
			desc = "Success"
		}
		entry := &Entry{
			ID:            uuid.NewString(),
			Operation:     summary.Operation,
			EditingRecord: oper.Editing.String(),
			Outcome:       string(outcome),
			OutcomeDesc:   desc,
			Actor:         actor.Username,
			Address:       actor.Address,
			RecordedAt:    recordedAt,
		}
		if oper.Editing.IsZero() {
			entry.EditingRecord = ""
		}
		if !oper.PriorGolden.IsZero() {
			entry.Related = append(entry.Related, Related{Name: names[0], Reference: oper.PriorGolden.String()})
		}
		for _, ref := range oper.Related {
			entry.Related = append(entry.Related, Related{Name: names[1], Reference: ref.String()})
		}
		entries = append(entries, entry)
	}
	return entries
}
