package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"linkage/internal/audit"
	auditpg "linkage/internal/audit/store/postgres"
	auditrs "linkage/internal/audit/store/recordstore"
	"linkage/internal/match/handler"
	"linkage/internal/match/matcher"
	"linkage/internal/match/models"
	"linkage/internal/match/service"
	"linkage/internal/match/store/fhir"
	"linkage/internal/platform/config"
	"linkage/internal/platform/httpserver"
	"linkage/internal/platform/logger"
	"linkage/internal/platform/metrics"
	platformredis "linkage/internal/platform/redis"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	systems := models.Systems{
		MatchIssues:       cfg.Systems.MatchIssues,
		HumanAdjudication: cfg.Systems.HumanAdjudication,
		ClientID:          cfg.Systems.ClientID,
		InternalID:        cfg.Systems.InternalID,
		BrokenMatch:       cfg.Systems.BrokenMatch,
		GoldenRecord:      cfg.Systems.GoldenRecord,
	}

	storeOpts := []fhir.Option{fhir.WithLogger(log)}
	cache, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable, continuing without cache", "error", err)
	} else if cache != nil {
		defer cache.Close()
		storeOpts = append(storeOpts, fhir.WithCache(cache, cfg.Redis.TTL))
	}
	records := fhir.New(cfg.RecordStoreURL, storeOpts...)

	var auditStore audit.Store
	if cfg.AuditDatabaseURL != "" {
		pg, err := auditpg.Open(context.Background(), cfg.AuditDatabaseURL)
		if err != nil {
			log.Error("audit database unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		auditStore = pg
	} else {
		auditStore = auditrs.New(records)
	}
	recorder := audit.NewRecorder(auditStore, audit.WithLogger(log), audit.WithMetrics(m))

	engine := matcher.NewClient(cfg.MatcherURL)
	match, err := service.New(records, engine, engine, recorder, systems,
		service.WithLogger(log),
		service.WithMetrics(m),
	)
	if err != nil {
		log.Error("service init failed", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	handler.New(match, log, m, cfg.RequestTimeout).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting linkage server", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
