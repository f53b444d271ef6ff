package matcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"linkage/internal/match/models"
	dErrors "linkage/pkg/domain-errors"
)

// Client is the HTTP adapter to the matching engine.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a matching engine client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type matchRequest struct {
	SourceResource *models.Record `json:"sourceResource"`
	IgnoreList     []string       `json:"ignoreList"`
}

type wireCandidate struct {
	Record *models.Record `json:"record"`
	Score  float64        `json:"score"`
}

type matchResponse struct {
	AutoMatched      []wireCandidate `json:"autoMatched"`
	PotentialMatches []wireCandidate `json:"potentialMatches"`
	ConflictMatches  []wireCandidate `json:"conflictMatches"`
}

// PerformMatch implements Matcher against the engine's /match endpoint.
func (c *Client) PerformMatch(ctx context.Context, source *models.Record, ignore []string) (*Result, error) {
	var resp matchResponse
	err := c.post(ctx, "/match", matchRequest{SourceResource: source, IgnoreList: ignore}, &resp)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "matching engine call failed")
	}
	return &Result{
		Auto:      fromWire(resp.AutoMatched),
		Potential: fromWire(resp.PotentialMatches),
		Conflicts: fromWire(resp.ConflictMatches),
	}, nil
}

// Resubmit implements Rematcher against the engine's per-client submission
// endpoint. The engine re-evaluates the record as if freshly submitted by
// its source system.
func (c *Client) Resubmit(ctx context.Context, clientID string, record *models.Record) (Response, error) {
	var resp Response
	err := c.post(ctx, "/submit/"+clientID, record, &resp)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "re-match submission failed")
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("matching engine returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func fromWire(in []wireCandidate) []Candidate {
	out := make([]Candidate, 0, len(in))
	for _, c := range in {
		if c.Record == nil {
			continue
		}
		out = append(out, Candidate{Record: c.Record, Score: c.Score})
	}
	return out
}
