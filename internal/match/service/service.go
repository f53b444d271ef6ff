// Package service orchestrates graph mutations: fetch current state, plan,
// commit, re-match, reconcile tags and audit. Mutations touching the same
// golden records are serialized through a single-writer keyed lock, since
// the record store offers no optimistic concurrency.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"linkage/internal/audit"
	"linkage/internal/match/bundle"
	"linkage/internal/match/matcher"
	"linkage/internal/match/matrix"
	"linkage/internal/match/models"
	"linkage/internal/match/planner"
	"linkage/internal/match/reconciler"
	"linkage/internal/match/store"
	"linkage/internal/platform/metrics"
)

// Service implements the match operations behind the HTTP surface.
type Service struct {
	store      store.RecordStore
	matcher    matcher.Matcher
	rematcher  matcher.Rematcher
	recorder   *audit.Recorder
	planner    *planner.Planner
	reconciler *reconciler.Reconciler
	matrix     *matrix.Builder
	systems    models.Systems
	recordType string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	goldenLocks *keyedMutex
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRecordType overrides the record type used for bare-ID requests.
func WithRecordType(recordType string) Option {
	return func(s *Service) { s.recordType = recordType }
}

// New creates the match service.
func New(st store.RecordStore, m matcher.Matcher, rm matcher.Rematcher, recorder *audit.Recorder, systems models.Systems, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if m == nil {
		return nil, fmt.Errorf("matcher is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}

	svc := &Service{
		store:      st,
		matcher:    m,
		rematcher:  rm,
		recorder:   recorder,
		systems:    systems,
		recordType: "Patient",
		logger:     slog.Default(),
		goldenLocks: &keyedMutex{
			locks: make(map[string]*keyedLock),
		},
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.planner = planner.New(systems)
	svc.reconciler = reconciler.New(st, systems, reconciler.WithLogger(svc.logger))
	svc.matrix = matrix.New(m, systems, matrix.WithLogger(svc.logger))
	return svc, nil
}

func (s *Service) recordMutation(operation string, outcome models.Outcome) {
	if s.metrics != nil {
		s.metrics.RecordMutation(operation, string(outcome))
	}
}

// commit applies a bundle to the record store and observes commit latency.
func (s *Service) commit(ctx context.Context, b *bundle.Bundle) error {
	start := time.Now()
	err := s.store.CommitBatch(ctx, b)
	if s.metrics != nil {
		s.metrics.CommitLatency.Observe(time.Since(start).Seconds())
	}
	return err
}

// keyedMutex serializes mutations per golden-record identifier. Keys are
// locked in sorted order so two operations over overlapping golden sets
// cannot deadlock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires every key and returns the release function.
func (k *keyedMutex) Lock(keys []string) (unlock func()) {
	uniq := make(map[string]bool, len(keys))
	ordered := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" || uniq[key] {
			continue
		}
		uniq[key] = true
		ordered = append(ordered, key)
	}
	sort.Strings(ordered)

	acquired := make([]*keyedLock, 0, len(ordered))
	for _, key := range ordered {
		k.mu.Lock()
		l, ok := k.locks[key]
		if !ok {
			l = &keyedLock{}
			k.locks[key] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		acquired = append(acquired, l)
	}

	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].mu.Unlock()
		}
		k.mu.Lock()
		for _, key := range ordered {
			l := k.locks[key]
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
		}
		k.mu.Unlock()
	}
}
