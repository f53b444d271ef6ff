// Package handler exposes the match operations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"linkage/internal/audit"
	"linkage/internal/match/matcher"
	"linkage/internal/match/models"
	"linkage/internal/match/service"
	"linkage/internal/platform/metrics"
	"linkage/internal/platform/middleware"
	"linkage/internal/transport/http/shared"
	dErrors "linkage/pkg/domain-errors"
)

// Service defines the match operations the handler exposes.
type Service interface {
	Resolve(ctx context.Context, req *models.ResolveRequest, actor audit.Actor) (service.ResolveStatus, error)
	Break(ctx context.Context, ids []string, actor audit.Actor) ([]string, error)
	Unbreak(ctx context.Context, pairs []models.UnbreakPair, actor audit.Actor) (matcher.Response, error)
	CountIssues(ctx context.Context) (int, error)
	ListIssues(ctx context.Context) ([]models.MatchIssue, error)
	ScoreMatrix(ctx context.Context, id string) ([]models.MatrixRow, error)
}

// Handler handles match endpoints.
type Handler struct {
	logger  *slog.Logger
	match   Service
	metrics *metrics.Metrics
	timeout time.Duration
}

// New creates a match Handler.
func New(match Service, logger *slog.Logger, m *metrics.Metrics, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Handler{
		logger:  logger,
		match:   match,
		metrics: m,
		timeout: timeout,
	}
}

// Register registers the match routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	matchRouter := chi.NewRouter()
	matchRouter.Use(middleware.Recovery(h.logger))
	matchRouter.Use(middleware.RequestID)
	matchRouter.Use(middleware.Logger(h.logger))
	matchRouter.Use(middleware.Timeout(h.timeout))
	matchRouter.Use(middleware.ContentTypeJSON)
	matchRouter.Use(middleware.LatencyMiddleware(h.metrics))
	matchRouter.Post("/resolve-match-issue", h.handleResolve)
	matchRouter.Post("/break-match", h.handleBreak)
	matchRouter.Post("/unbreak-match", h.handleUnbreak)
	matchRouter.Get("/count-match-issues", h.handleCountIssues)
	matchRouter.Get("/get-match-issues", h.handleGetIssues)
	matchRouter.Get("/potential-matches/{id}", h.handlePotentialMatches)

	r.Mount("/match", matchRouter)
}

// actor builds the audit actor from the request. The review UI passes the
// reviewer's username as a query parameter.
func actor(r *http.Request) audit.Actor {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return audit.Actor{
		Username: r.URL.Query().Get("username"),
		Address:  host,
	}
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid resolve request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	status, err := h.match.Resolve(ctx, &req, actor(r))
	if err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) {
			h.logger.WarnContext(ctx, "resolve request rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to resolve match issue",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to resolve match issue"))
		return
	}

	if status == service.ResolveNoop {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleBreak(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	// The body is a bare JSON array of "RecordType/id" references.
	var ids []string
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		h.logger.WarnContext(ctx, "invalid break request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteJSON(w, http.StatusBadRequest, models.NewOperationOutcome("invalid request body"))
		return
	}
	if len(ids) == 0 {
		shared.WriteJSON(w, http.StatusBadRequest, models.NewOperationOutcome("no record IDs supplied"))
		return
	}

	diagnostics, err := h.match.Break(ctx, ids, actor(r))
	if err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) {
			h.logger.WarnContext(ctx, "break request rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			shared.WriteJSON(w, http.StatusBadRequest, models.NewOperationOutcome(diagnostics...))
			return
		}
		h.logger.ErrorContext(ctx, "failed to break matches",
			"request_id", requestID,
			"error", err.Error(),
		)
		if len(diagnostics) == 0 {
			diagnostics = []string{"internal error occurred while breaking matches"}
		}
		shared.WriteJSON(w, http.StatusInternalServerError, models.NewOperationOutcome(diagnostics...))
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleUnbreak(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	// The body is a bare JSON array of {id1, id2} pairs.
	var pairs []models.UnbreakPair
	if err := json.NewDecoder(r.Body).Decode(&pairs); err != nil {
		h.logger.WarnContext(ctx, "invalid unbreak request body",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteJSON(w, http.StatusBadRequest, models.NewOperationOutcome("invalid request body"))
		return
	}
	if len(pairs) == 0 {
		shared.WriteJSON(w, http.StatusBadRequest, models.NewOperationOutcome("no record pairs supplied"))
		return
	}

	resp, err := h.match.Unbreak(ctx, pairs, actor(r))
	if err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) {
			h.logger.WarnContext(ctx, "unbreak request rejected",
				"request_id", requestID,
				"error", err.Error(),
			)
			shared.WriteJSON(w, http.StatusBadRequest, models.NewOperationOutcome(err.Error()))
			return
		}
		h.logger.ErrorContext(ctx, "failed to unbreak matches",
			"request_id", requestID,
			"error", err.Error(),
		)
		// The marker removal is committed even when re-matching fails
		// part-way, so return whatever re-match responses did come back.
		if resp != nil {
			shared.WriteJSON(w, http.StatusInternalServerError, resp)
			return
		}
		shared.WriteJSON(w, http.StatusInternalServerError, models.NewOperationOutcome("internal error occurred while unbreaking matches"))
		return
	}

	shared.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleCountIssues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := h.match.CountIssues(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to count match issues",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to count match issues"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, models.CountResponse{Total: total})
}

func (h *Handler) handleGetIssues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	issues, err := h.match.ListIssues(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list match issues",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list match issues"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, issues)
}

func (h *Handler) handlePotentialMatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if id == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "record id is required"))
		return
	}

	rows, err := h.match.ScoreMatrix(ctx, id)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to build score matrix",
			"request_id", middleware.GetRequestID(ctx),
			"record_id", id,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to build score matrix"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, rows)
}
