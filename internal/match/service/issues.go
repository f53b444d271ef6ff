package service

import (
	"context"

	"linkage/internal/match/models"
	dErrors "linkage/pkg/domain-errors"
)

// CountIssues returns how many records currently carry the potential-matches
// flag. Conflict flags surface on the individual record, not in this count.
func (s *Service) CountIssues(ctx context.Context) (int, error) {
	n, err := s.store.CountByTag(ctx, s.recordType, models.Tag{
		System: s.systems.MatchIssues,
		Code:   models.CodePotentialMatches,
	})
	if err != nil {
		return 0, dErrors.Wrapf(err, dErrors.CodeUnavailable, "count %s records", models.CodePotentialMatches)
	}
	return n, nil
}

// ListIssues returns the worklist of records flagged with the
// potential-matches tag, one row per flagged record.
func (s *Service) ListIssues(ctx context.Context) ([]models.MatchIssue, error) {
	records, err := s.store.FindByTag(ctx, s.recordType, models.Tag{
		System: s.systems.MatchIssues,
		Code:   models.CodePotentialMatches,
	})
	if err != nil {
		return nil, dErrors.Wrapf(err, dErrors.CodeUnavailable, "list %s records", models.CodePotentialMatches)
	}
	issues := make([]models.MatchIssue, 0, len(records))
	for _, rec := range records {
		issues = append(issues, s.issueRow(rec))
	}
	return issues, nil
}

func (s *Service) issueRow(rec *models.Record) models.MatchIssue {
	row := models.MatchIssue{
		ID:        rec.ID,
		Gender:    rec.Gender,
		Family:    rec.Family,
		Given:     rec.GivenName(),
		BirthDate: rec.BirthDate,
	}
	if golden, ok := rec.ReferTarget(); ok {
		row.UID = golden.ID
	}
	if source, ok := rec.ClientSource(s.systems); ok {
		row.Source = source
	}
	if sourceID, ok := rec.SourceIdentifier(s.systems); ok {
		row.SourceID = sourceID
	}
	if tag, ok := rec.FindTag(s.systems.MatchIssues); ok {
		row.Reason = tag.Display
		row.ReasonCode = tag.Code
	}
	return row
}

// ScoreMatrix walks the match graph outward from one record and returns the
// pairwise score rows the review UI renders.
func (s *Service) ScoreMatrix(ctx context.Context, id string) ([]models.MatrixRow, error) {
	seed, err := s.store.GetRecord(ctx, models.Ref{Type: s.recordType, ID: id})
	if err != nil {
		return nil, err
	}
	rows, err := s.matrix.Build(ctx, seed)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.MatrixRows.Observe(float64(len(rows)))
	}
	return rows, nil
}
