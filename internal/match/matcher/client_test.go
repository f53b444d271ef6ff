package matcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkage/internal/match/models"
)

func TestPerformMatchWireFormat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/match", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		json.NewEncoder(w).Encode(map[string]any{
			"autoMatched": []map[string]any{
				{"record": models.Record{Type: "Patient", ID: "m2"}, "score": 0.95},
			},
			"potentialMatches": []map[string]any{
				{"record": models.Record{Type: "Patient", ID: "m3"}, "score": 0.7},
			},
			"conflictMatches": []map[string]any{},
		})
	}))
	defer srv.Close()

	result, err := NewClient(srv.URL).PerformMatch(context.Background(),
		&models.Record{Type: "Patient", ID: "m1"}, []string{"m1"})
	require.NoError(t, err)

	source := got["sourceResource"].(map[string]any)
	assert.Equal(t, "m1", source["id"])
	assert.Equal(t, []any{"m1"}, got["ignoreList"])

	require.Len(t, result.Auto, 1)
	assert.Equal(t, "m2", result.Auto[0].Record.ID)
	assert.Equal(t, 0.95, result.Auto[0].Score)
	require.Len(t, result.Potential, 1)
	assert.Empty(t, result.Conflicts)
}

func TestPerformMatchEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PerformMatch(context.Background(),
		&models.Record{Type: "Patient", ID: "m1"}, nil)
	require.Error(t, err)
}

func TestResubmitPostsToClientEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submit/clientA", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"m1": "rematched"})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Resubmit(context.Background(), "clientA",
		&models.Record{Type: "Patient", ID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "rematched", resp["m1"])
}

func TestDropResolvedTargets(t *testing.T) {
	underG2 := &models.Record{
		Type:  "Patient",
		ID:    "m3",
		Links: []models.Link{{Kind: models.LinkRefer, Other: models.Ref{Type: "Patient", ID: "g2"}}},
	}
	underG9 := &models.Record{
		Type:  "Patient",
		ID:    "m9",
		Links: []models.Link{{Kind: models.LinkRefer, Other: models.Ref{Type: "Patient", ID: "g9"}}},
	}
	result := &Result{
		Potential: []Candidate{{Record: underG2}, {Record: underG9}},
		Conflicts: []Candidate{{Record: underG2}},
	}

	result.DropResolvedTargets(map[string]bool{"g2": true})

	require.Len(t, result.Potential, 1)
	assert.Equal(t, "m9", result.Potential[0].Record.ID)
	assert.Empty(t, result.Conflicts)
}
