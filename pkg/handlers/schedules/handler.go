package schedules

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/handlers/respond"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models/api"
	"github.com/autoflow-hq/core/pkg/services"
)

type Handler struct {
	tasks  *services.ScheduledTaskService
	logger *logger.Logger
}

func NewHandler(tasks *services.ScheduledTaskService, log *logger.Logger) *Handler {
	return &Handler{
		tasks:  tasks,
		logger: log,
	}
}

type createScheduleRequest struct {
	Name           string         `json:"name"`
	Description    *string        `json:"description"`
	PipelineName   string         `json:"pipeline_name"`
	CronExpression string         `json:"cron_expression"`
	Timezone       string         `json:"timezone"`
	Enabled        *bool          `json:"enabled"`
	InputParams    map[string]any `json:"input_params"`
	Color          *string        `json:"color"`
}

// Create handles POST /api/schedules
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "invalid JSON payload")
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	task, err := h.tasks.Create(r.Context(), services.CreateTaskParams{
		OwnerID:        ownerID,
		Name:           req.Name,
		Description:    req.Description,
		PipelineName:   req.PipelineName,
		CronExpression: req.CronExpression,
		Timezone:       req.Timezone,
		Enabled:        enabled,
		InputParams:    req.InputParams,
		Color:          req.Color,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, task, nil)
}

// Get handles GET /api/schedules/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, task, nil)
}

// List handles GET /api/schedules
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	params := services.ListTasksParams{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 50),
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 200 {
		params.PageSize = 50
	}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled := v == "true"
		params.Enabled = &enabled
	}
	if v := r.URL.Query().Get("pipeline_name"); v != "" {
		params.PipelineName = &v
	}

	tasks, total, err := h.tasks.List(r.Context(), params)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, tasks, pagination(params.Page, params.PageSize, total))
}

// Update handles PATCH /api/schedules/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	// Optional fields keep explicit nulls distinct from omitted fields
	var params services.UpdateTaskParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "invalid JSON payload")
		return
	}

	task, err := h.tasks.Update(r.Context(), id, params)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, task, nil)
}

// Delete handles DELETE /api/schedules/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.tasks.Delete(r.Context(), id); err != nil {
		respond.Error(w, err)
		return
	}
	respond.Message(w, http.StatusOK, "Scheduled task deleted")
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// Toggle handles POST /api/schedules/{id}/toggle
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req toggleRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.ErrorKind(w, http.StatusBadRequest, "validation", "invalid JSON payload")
			return
		}
	}

	task, err := h.tasks.Toggle(r.Context(), id, req.Enabled)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, task, nil)
}

// Calendar handles GET /api/schedules/calendar
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	start, err := parseDate(r.URL.Query().Get("start_date"), false)
	if err != nil {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "start_date must be RFC3339 or YYYY-MM-DD")
		return
	}
	end, err := parseDate(r.URL.Query().Get("end_date"), true)
	if err != nil {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "end_date must be RFC3339 or YYYY-MM-DD")
		return
	}

	params := services.CalendarParams{
		Start:       start,
		End:         end,
		EnabledOnly: r.URL.Query().Get("enabled_only") == "true",
	}
	if v := r.URL.Query().Get("pipeline_name"); v != "" {
		params.PipelineName = &v
	}

	occurrences, err := h.tasks.CalendarOccurrences(r.Context(), params)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, occurrences, map[string]interface{}{
		"total": len(occurrences),
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	header := r.Header.Get("X-User-ID")
	if header == "" {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "X-User-ID header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(header)
	if err != nil {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "X-User-ID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.ErrorKind(w, http.StatusBadRequest, "validation", "schedule id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// parseDate accepts RFC3339 instants or bare dates. Bare end dates extend to
// the end of that day.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t.UTC(), nil
}

func pagination(page, pageSize int, total int64) api.PaginationInfo {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return api.PaginationInfo{
		Page:        page,
		PerPage:     pageSize,
		Total:       int(total),
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}
