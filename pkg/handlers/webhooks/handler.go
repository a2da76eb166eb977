package webhooks

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoflow-hq/core/pkg/handlers/respond"
	"github.com/autoflow-hq/core/pkg/logger"
	"github.com/autoflow-hq/core/pkg/models/api"
	"github.com/autoflow-hq/core/pkg/pipeline"
	"github.com/autoflow-hq/core/pkg/services"
)

// Handler receives external webhook payloads and forwards them to the
// execution coordinator. Pipelines are addressed by their URL-safe slug.
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

// Receive handles POST /api/webhooks/{slug}
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	p, err := h.registry.ResolveSlug(slug)
	if err != nil {
		respond.Error(w, err)
		return
	}
	name := p.Descriptor().Name

	var input map[string]any
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			respond.ErrorKind(w, http.StatusBadRequest, "validation", "webhook payload must be a JSON object")
			return
		}
	}

	ec := pipeline.NewExecutionContext(pipeline.SourceWebhook).
		WithMeta("remote_addr", r.RemoteAddr).
		WithMeta("webhook_slug", slug)

	result := h.executor.Execute(r.Context(), name, input, ec)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(api.Response{
		Success: result.Success,
		Data:    result,
		Message: result.Error,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode webhook response")
	}
}
