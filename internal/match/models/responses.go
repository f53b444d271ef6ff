package models

// OperationOutcome is the error body returned by break and unbreak.
type OperationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}

// Issue is one problem entry inside an OperationOutcome.
type Issue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics"`
}

// NewOperationOutcome builds an outcome with the given diagnostics, one
// issue per message.
func NewOperationOutcome(diagnostics ...string) *OperationOutcome {
	out := &OperationOutcome{ResourceType: "OperationOutcome"}
	for _, d := range diagnostics {
		out.Issue = append(out.Issue, Issue{
			Severity:    "error",
			Code:        "processing",
			Diagnostics: d,
		})
	}
	return out
}

// MatchIssue is one row of GET /get-match-issues.
type MatchIssue struct {
	ID         string `json:"id"`
	Gender     string `json:"gender"`
	Family     string `json:"family"`
	Given      string `json:"given"`
	BirthDate  string `json:"birthDate"`
	UID        string `json:"uid"`
	Source     string `json:"source"`
	SourceID   string `json:"source_id"`
	Reason     string `json:"reason"`
	ReasonCode string `json:"reasonCode"`
}

// MatrixRow is one row of the recursive score matrix returned by
// GET /potential-matches/{id}. Scores is keyed by the counterpart record's
// source identifier.
type MatrixRow struct {
	ID        string             `json:"id"`
	Gender    string             `json:"gender"`
	Given     string             `json:"given"`
	Family    string             `json:"family"`
	BirthDate string             `json:"birthDate"`
	UID       string             `json:"uid"`
	OUID      string             `json:"ouid"`
	Source    string             `json:"source"`
	SourceID  string             `json:"source_id"`
	Scores    map[string]float64 `json:"scores"`
}

// CountResponse is the GET /count-match-issues body.
type CountResponse struct {
	Total int `json:"total"`
}
