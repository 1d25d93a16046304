package tracker

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/pkg/handlers"
	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
	"github.com/JaimeStill/invoice-pipeline/pkg/routes"
)

// Handler exposes processing records for dashboard polling.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "tracker"),
		pagination: pagination,
	}
}

// Routes returns read-only invoice status routes. Upload lives with the pipeline
// handler under the same prefix.
func (h *Handler) Routes() []routes.Route {
	return []routes.Route{
		{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: Spec.List},
		{Method: "GET", Pattern: "/stats", Handler: h.Stats, OpenAPI: Spec.Stats},
		{Method: "GET", Pattern: "/{id}", Handler: h.Find, OpenAPI: Spec.Find},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	rec, err := h.sys.GetStatus(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, rec)
}

// Stats reports stage counts for records created within ?since (default 24h).
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("invalid since %q", v))
			return
		}
		window = d
	}

	stats, err := h.sys.Stats(r.Context(), time.Now().Add(-window))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, stats)
}
