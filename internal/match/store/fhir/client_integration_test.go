//go:build integration

package fhir_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"linkage/internal/match/bundle"
	"linkage/internal/match/models"
	"linkage/internal/match/store/fhir"
	platformredis "linkage/internal/platform/redis"
	"linkage/pkg/testutil/containers"
)

// CachedClientSuite exercises the redis read-through cache against a real
// redis instance, with a counting httptest server standing in for the
// record store backend.
type CachedClientSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	backend *httptest.Server
	client  *fhir.Client

	getHits    atomic.Int64
	searchHits atomic.Int64
}

func TestCachedClientSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedClientSuite))
}

func (s *CachedClientSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /Patient/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.getHits.Add(1)
		rec := models.Record{Type: "Patient", ID: r.PathValue("id"), Family: "Okello"}
		s.Require().NoError(json.NewEncoder(w).Encode(&rec))
	})
	mux.HandleFunc("GET /Patient", func(w http.ResponseWriter, r *http.Request) {
		s.searchHits.Add(1)
		set := map[string]any{
			"total": 1,
			"entry": []map[string]any{
				{"resource": &models.Record{Type: "Patient", ID: "m1", Family: "Okello"}},
			},
		}
		s.Require().NoError(json.NewEncoder(w).Encode(set))
	})
	mux.HandleFunc("POST /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.backend = httptest.NewServer(mux)
	s.T().Cleanup(s.backend.Close)

	cache := &platformredis.Client{Client: s.redis.Client}
	s.client = fhir.New(s.backend.URL, fhir.WithCache(cache, time.Minute))
}

func (s *CachedClientSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.getHits.Store(0)
	s.searchHits.Store(0)
}

func (s *CachedClientSuite) TestRepeatReadServedFromCache() {
	ctx := context.Background()
	ref := models.Ref{Type: "Patient", ID: "m1"}

	first, err := s.client.GetRecord(ctx, ref)
	s.Require().NoError(err)
	s.Equal(int64(1), s.getHits.Load())

	second, err := s.client.GetRecord(ctx, ref)
	s.Require().NoError(err)
	s.Equal(int64(1), s.getHits.Load(), "second read must not reach the backend")
	s.Equal(first, second)
}

func (s *CachedClientSuite) TestFindByIDsNoCacheBypassesCache() {
	ctx := context.Background()

	_, err := s.client.GetRecord(ctx, models.Ref{Type: "Patient", ID: "m1"})
	s.Require().NoError(err)

	got, err := s.client.FindByIDs(ctx, "Patient", []string{"m1"}, true)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(int64(1), s.searchHits.Load(), "noCache read must hit the backend")
}

func (s *CachedClientSuite) TestFindByIDsServesCachedRecords() {
	ctx := context.Background()

	_, err := s.client.GetRecord(ctx, models.Ref{Type: "Patient", ID: "m1"})
	s.Require().NoError(err)

	got, err := s.client.FindByIDs(ctx, "Patient", []string{"m1"}, false)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("m1", got[0].ID)
	s.Equal(int64(0), s.searchHits.Load(), "cached read must not search the backend")
}

func (s *CachedClientSuite) TestCommitInvalidatesTouchedRecords() {
	ctx := context.Background()
	ref := models.Ref{Type: "Patient", ID: "m1"}

	_, err := s.client.GetRecord(ctx, ref)
	s.Require().NoError(err)
	s.Equal(int64(1), s.getHits.Load())

	b := bundle.New()
	b.Add(&models.Record{Type: "Patient", ID: "m1", Family: "Changed"})
	s.Require().NoError(s.client.CommitBatch(ctx, b))

	_, err = s.client.GetRecord(ctx, ref)
	s.Require().NoError(err)
	s.Equal(int64(2), s.getHits.Load(), "commit must evict the cached copy")
}
