package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkage/internal/match/models"
)

func ref(id string) models.Ref {
	return models.Ref{Type: "Patient", ID: id}
}

type captureStore struct {
	entries []*Entry
	fail    bool
}

func (c *captureStore) Append(_ context.Context, entries []*Entry) error {
	if c.fail {
		return assert.AnError
	}
	c.entries = append(c.entries, entries...)
	return nil
}

func TestEntriesFromSummary(t *testing.T) {
	summary := models.NewSummary("break")
	summary.Add(&models.OperationSummary{
		Editing:     ref("m1"),
		PriorGolden: ref("g1"),
		Related:     []models.Ref{ref("m2"), ref("m3")},
	})
	summary.Add(&models.OperationSummary{
		Editing: ref("m4"),
		Outcome: models.OutcomeError,
		Desc:    "golden record not found",
	})

	recordedAt := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)
	actor := Actor{Username: "reviewer", Address: "10.0.0.9"}
	entries := EntriesFromSummary(summary, actor, recordedAt)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "break", first.Operation)
	assert.Equal(t, "Patient/m1", first.EditingRecord)
	assert.Equal(t, "0", first.Outcome)
	assert.Equal(t, "Success", first.OutcomeDesc)
	assert.Equal(t, "reviewer", first.Actor)
	assert.Equal(t, "10.0.0.9", first.Address)
	assert.Equal(t, recordedAt, first.RecordedAt)
	assert.Equal(t, []Related{
		{Name: "oldCRUID", Reference: "Patient/g1"},
		{Name: "breakFrom", Reference: "Patient/m2"},
		{Name: "breakFrom", Reference: "Patient/m3"},
	}, first.Related)

	second := entries[1]
	assert.Equal(t, "8", second.Outcome)
	assert.Equal(t, "golden record not found", second.OutcomeDesc)
	assert.Empty(t, second.Related)
}

func TestEntriesFromSummaryOperationNames(t *testing.T) {
	for op, want := range map[string][2]string{
		"resolve": {"oldCRUID", "resolvedTo"},
		"unbreak": {"unBreakFromCRUID", "unBreakFromResource"},
	} {
		summary := models.NewSummary(op)
		summary.Add(&models.OperationSummary{
			Editing:     ref("m1"),
			PriorGolden: ref("g1"),
			Related:     []models.Ref{ref("m2")},
		})
		entries := EntriesFromSummary(summary, Actor{}, time.Now())
		require.Len(t, entries, 1)
		assert.Equal(t, want[0], entries[0].Related[0].Name, op)
		assert.Equal(t, want[1], entries[0].Related[1].Name, op)
	}
}

func TestRecorderPersistsEntries(t *testing.T) {
	store := &captureStore{}
	now := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)
	rec := NewRecorder(store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return now }),
	)

	summary := models.NewSummary("resolve")
	summary.Add(&models.OperationSummary{Editing: ref("m1")})
	rec.Record(context.Background(), summary, Actor{Username: "reviewer"})

	require.Len(t, store.entries, 1)
	assert.Equal(t, now, store.entries[0].RecordedAt)
}

func TestRecorderSkipsEmptySummary(t *testing.T) {
	store := &captureStore{}
	rec := NewRecorder(store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	rec.Record(context.Background(), models.NewSummary("resolve"), Actor{})
	assert.Empty(t, store.entries)
}

func TestRecorderSwallowsStoreFailure(t *testing.T) {
	store := &captureStore{fail: true}
	rec := NewRecorder(store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	summary := models.NewSummary("break")
	summary.Add(&models.OperationSummary{Editing: ref("m1")})

	// best effort: persistence failure must not propagate
	assert.NotPanics(t, func() {
		rec.Record(context.Background(), summary, Actor{})
	})
}
