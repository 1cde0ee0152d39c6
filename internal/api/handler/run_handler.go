package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"route-pipeline/internal/model"
	"route-pipeline/internal/orchestrator"
	"route-pipeline/internal/store"

	"github.com/google/uuid"
)

// RunReader is the read side of the run history.
type RunReader interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunInfo, error)
	GetRun(ctx context.Context, id string) (*model.RunReport, error)
	LatestRun(ctx context.Context) (*model.RunReport, error)
	CollectorStatuses(ctx context.Context) (map[string]store.CollectorStatus, error)
}

// Runner starts collection runs.
type Runner interface {
	Run(ctx context.Context, opts orchestrator.RunOptions) (*model.RunReport, error)
	ListCollectors() []orchestrator.CollectorInfo
	State() model.RunState
}

// Handler serves the status API.
type Handler struct {
	runs    RunReader
	runner  Runner
	logger  *slog.Logger
	baseCtx context.Context
}

// New creates a Handler. Runs triggered over HTTP live on baseCtx, not on the request.
func New(baseCtx context.Context, runs RunReader, runner Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{runs: runs, runner: runner, logger: logger, baseCtx: baseCtx}
}

// CollectRequest narrows a triggered run.
type CollectRequest struct {
	Sources []string `json:"sources"`
}

// CollectResponse acknowledges a triggered run.
type CollectResponse struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Sources   []string  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CollectorView joins a configured collector with its last stored outcome.
type CollectorView struct {
	orchestrator.CollectorInfo
	LastStatus    model.CollectionStatus `json:"last_status,omitempty"`
	LastRunAt     *time.Time             `json:"last_run_at,omitempty"`
	LastError     string                 `json:"last_error,omitempty"`
	LastAccepted  int                    `json:"last_accepted"`
	Collections   int                    `json:"collections"`
	TotalAccepted int                    `json:"total_accepted"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListRuns retrieves recent collection runs
// @Summary List runs
// @Description Get the most recent collection runs, newest first
// @Tags runs
// @Produce json
// @Param limit query int false "Maximum number of runs" default(20)
// @Success 200 {array} store.RunInfo
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// LatestRun retrieves the most recent run report
// @Summary Latest run
// @Description Get the full report of the most recent collection run
// @Tags runs
// @Produce json
// @Success 200 {object} model.RunReport
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /runs/latest [get]
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	report, err := h.runs.LatestRun(r.Context())
	h.writeReport(w, report, err)
}

// GetRun retrieves a specific run report
// @Summary Get run
// @Description Get the full report of one collection run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} model.RunReport
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/runs/"
	runID := strings.TrimPrefix(r.URL.Path, prefix)
	if runID == "" || runID == r.URL.Path || strings.Contains(runID, "/") {
		writeError(w, http.StatusBadRequest, "Run ID is required")
		return
	}
	report, err := h.runs.GetRun(r.Context(), runID)
	h.writeReport(w, report, err)
}

func (h *Handler) writeReport(w http.ResponseWriter, report *model.RunReport, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Run not found")
	case err != nil:
		h.logger.Error("load run", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load run")
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// ListCollectors lists configured collectors with their last outcome
// @Summary List collectors
// @Description Get every configured collector joined with its last stored result
// @Tags collectors
// @Produce json
// @Success 200 {array} CollectorView
// @Failure 500 {object} ErrorResponse
// @Router /collectors [get]
func (h *Handler) ListCollectors(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.runs.CollectorStatuses(r.Context())
	if err != nil {
		h.logger.Error("collector statuses", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch collector status")
		return
	}
	infos := h.runner.ListCollectors()
	views := make([]CollectorView, 0, len(infos))
	for _, info := range infos {
		v := CollectorView{CollectorInfo: info}
		if st, ok := statuses[info.Name]; ok {
			finished := st.FinishedAt
			v.LastStatus = st.Status
			v.LastRunAt = &finished
			v.LastError = st.LastError
			v.LastAccepted = st.RecordsAccepted
			v.Collections = st.Collections
			v.TotalAccepted = st.TotalAccepted
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// TriggerCollect starts a collection run in the background
// @Summary Trigger collection
// @Description Start a collection run over all or the named collectors
// @Tags runs
// @Accept json
// @Produce json
// @Param request body CollectRequest false "Collectors to run"
// @Success 202 {object} CollectResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /collect [post]
func (h *Handler) TriggerCollect(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
	}
	if st := h.runner.State(); !st.Terminal() && st != model.StateIdle {
		writeError(w, http.StatusConflict, orchestrator.ErrRunInProgress.Error())
		return
	}

	runID := uuid.New().String()
	go func() {
		report, err := h.runner.Run(h.baseCtx, orchestrator.RunOptions{RunID: runID, Sources: req.Sources})
		if err != nil {
			h.logger.Error("triggered run failed", "run_id", runID, "error", err)
			return
		}
		h.logger.Info("triggered run finished", "run_id", runID, "status", report.Status)
	}()

	writeJSON(w, http.StatusAccepted, CollectResponse{
		RunID:     runID,
		Status:    "accepted",
		Sources:   req.Sources,
		CreatedAt: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
