package pipelines

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autoflow-hq/core/pkg/handlers/respond"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models/api"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/services"
)

type Handler struct {
	registry *pipeline.Registry
	executor *services.Executor
	logger   *logger.Logger
}

func NewHandler(registry *pipeline.Registry, executor *services.Executor, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		executor: executor,
		logger:   log,
	}
}

func toResponse(desc pipeline.Descriptor) api.PipelineResponse {
	return api.PipelineResponse{
		Name:         desc.Name,
		Slug:         desc.Slug,
		Description:  desc.Description,
		Tags:         desc.Tags,
		Area:         desc.Area,
		InputSchema:  desc.InputSchema,
		OutputSchema: desc.OutputSchema,
	}
}

// List handles GET /api/pipelines
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := pipeline.Filter{
		Area: r.URL.Query().Get("area"),
	}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		filter.Tags = strings.Split(tags, ",")
	}

	descriptors := h.registry.List(filter)
	response := make([]api.PipelineResponse, 0, len(descriptors))
	for _, desc := range descriptors {
		response = append(response, toResponse(desc))
	}

	respond.JSON(w, http.StatusOK, response, map[string]interface{}{
		"total": len(response),
	})
}

// Describe handles GET /api/pipelines/{name}
func (h *Handler) Describe(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	desc, err := h.registry.Describe(name)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResponse(desc), nil)
}

// Execute handles POST /api/pipelines/{name}/execute
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if _, err := h.registry.Resolve(name); err != nil {
		respond.Error(w, err)
		return
	}

	var input map[string]any
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			respond.ErrorKind(w, http.StatusBadRequest, "validation", "request body must be a JSON object")
			return
		}
	}

	ec := pipeline.NewExecutionContext(pipeline.SourceAPI).
		WithMeta("remote_addr", r.RemoteAddr)
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		uid, err := uuid.Parse(userID)
		if err != nil {
			respond.ErrorKind(w, http.StatusBadRequest, "validation", "X-User-ID must be a UUID")
			return
		}
		ec = ec.WithUser(uid)
	}

	result := h.executor.Execute(r.Context(), name, input, ec)

	// The execution outcome travels in the body; transport-level success
	// just means the coordinator ran
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{
		Success: result.Success,
		Data:    result,
		Message: result.Error,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode execution response")
	}
}
