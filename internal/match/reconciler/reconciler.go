// Package reconciler recomputes match-status tags on a record from fresh
// matching engine output. Tag writes against the store are independent per
// tag kind: a failure on one is surfaced but never rolls back the other.
package reconciler

import (
	"context"
	"errors"
	"log/slog"

	"linkage/internal/match/matcher"
	"linkage/internal/match/models"
	"linkage/internal/match/store"
	dErrors "linkage/pkg/domain-errors"
)

// Reconciler updates match-issue tags on member records.
type Reconciler struct {
	store   store.RecordStore
	systems models.Systems
	logger  *slog.Logger
}

// Option configures the Reconciler.
type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// New creates a Reconciler.
func New(st store.RecordStore, systems models.Systems, opts ...Option) *Reconciler {
	r := &Reconciler{store: st, systems: systems, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies the tag rules to record in place and issues tag deletes
// against the store where needed. The caller persists the updated record
// afterwards. result must already have resolved targets dropped.
func (r *Reconciler) Reconcile(ctx context.Context, record *models.Record, result *matcher.Result, removeFlag bool, flagType string) error {
	potentialErr := r.reconcileKind(ctx, record, kindSpec{
		code:      models.CodePotentialMatches,
		display:   models.DisplayPotentialMatches,
		remaining: len(result.Potential),
		removed:   removeFlag && flagType == models.CodePotentialMatches,
	})
	conflictErr := r.reconcileKind(ctx, record, kindSpec{
		code:      models.CodeConflictMatches,
		display:   models.DisplayConflictMatches,
		remaining: len(result.Conflicts),
		removed:   removeFlag && flagType == models.CodeConflictMatches,
	})
	return errors.Join(potentialErr, conflictErr)
}

type kindSpec struct {
	code      string
	display   string
	remaining int
	removed   bool
}

func (r *Reconciler) reconcileKind(ctx context.Context, record *models.Record, spec kindSpec) error {
	issueTag := models.Tag{
		System:  r.systems.MatchIssues,
		Code:    spec.code,
		Display: spec.display,
	}

	if spec.remaining > 0 && !spec.removed {
		record.EnsureTag(issueTag)
		return nil
	}

	// Nothing left to review for this kind, or the operator asked for the
	// flag to go. A removed flag means a human settled the issue.
	if !record.RemoveTag(issueTag.System, issueTag.Code) {
		return nil
	}
	record.EnsureTag(models.Tag{
		System:  r.systems.HumanAdjudication,
		Code:    models.CodeHumanAdjudication,
		Display: models.DisplayHumanAdjudication,
	})
	if err := r.store.DeleteTag(ctx, record.Ref(), issueTag); err != nil {
		r.logger.ErrorContext(ctx, "match-issue tag delete failed",
			"record", record.Ref().String(),
			"tag", spec.code,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "removing "+spec.code+" tag")
	}
	return nil
}
