package runs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/handlers/respond"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models"
	"github.com/autoflow-hq/core/pkg/models/api"
	"github.com/autoflow-hq/core/pkg/services"
)

type Handler struct {
	runs   *services.RunService
	logger *logger.Logger
}

func NewHandler(runs *services.RunService, log *logger.Logger) *Handler {
	return &Handler{
		runs:   runs,
		logger: log,
	}
}

// List handles GET /api/runs
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := services.ListRunsParams{
		SuccessOnly: q.Get("success_only") == "true",
		ErrorOnly:   q.Get("error_only") == "true",
		Page:        queryInt(r, "page", 1),
		PageSize:    queryInt(r, "page_size", 50),
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 200 {
		params.PageSize = 50
	}
	if v := q.Get("pipeline_name"); v != "" {
		params.PipelineName = &v
	}
	if v := q.Get("status"); v != "" {
		status := models.RunStatus(v)
		params.Status = &status
	}
	if v := q.Get("trigger_type"); v != "" {
		params.TriggerType = &v
	}
	if v := q.Get("user_id"); v != "" {
		uid, err := uuid.Parse(v)
		if err != nil {
			respond.ErrorKind(w, http.StatusBadRequest, "validation", "user_id must be a UUID")
			return
		}
		params.UserID = &uid
	}
	if v := q.Get("started_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respond.ErrorKind(w, http.StatusBadRequest, "validation", "started_after must be RFC3339")
			return
		}
		params.StartedAfter = &t
	}
	if v := q.Get("started_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respond.ErrorKind(w, http.StatusBadRequest, "validation", "started_before must be RFC3339")
			return
		}
		params.StartedBefore = &t
	}

	runs, total, err := h.runs.List(r.Context(), params)
	if err != nil {
		respond.Error(w, err)
		return
	}

	totalPages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))
	respond.JSON(w, http.StatusOK, runs, api.PaginationInfo{
		Page:        params.Page,
		PerPage:     params.PageSize,
		Total:       int(total),
		TotalPages:  totalPages,
		HasNext:     params.Page < totalPages,
		HasPrevious: params.Page > 1,
	})
}

// Get handles GET /api/runs/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "run id must be a UUID")
		return
	}
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, run, nil)
}

// Cancel handles POST /api/runs/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "run id must be a UUID")
		return
	}
	run, err := h.runs.Cancel(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, run, nil)
}

// Stats handles GET /api/runs/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var pipelineName *string
	if v := r.URL.Query().Get("pipeline_name"); v != "" {
		pipelineName = &v
	}
	var sinceHours *int
	if v := r.URL.Query().Get("since_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.ErrorKind(w, http.StatusBadRequest, "validation", "since_hours must be a non-negative integer")
			return
		}
		sinceHours = &n
	}

	stats, err := h.runs.Stats(r.Context(), pipelineName, sinceHours)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, stats, nil)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
