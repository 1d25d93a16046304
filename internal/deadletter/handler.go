package deadletter

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/invoice-pipeline/pkg/handlers"
	"github.com/JaimeStill/invoice-pipeline/pkg/pagination"
	"github.com/JaimeStill/invoice-pipeline/pkg/routes"
)

// Reprocessor re-injects a dead-lettered submission and returns the new fileId.
type Reprocessor interface {
	Reprocess(ctx context.Context, fileID uuid.UUID) (uuid.UUID, error)
}

// Resolver closes an entry without reprocessing it and records the
// resolution on the processing record.
type Resolver interface {
	Resolve(ctx context.Context, fileID uuid.UUID, cmd ResolveCommand) (Entry, error)
}

// Recovery closes entries on behalf of the handler. Both operations also
// annotate the processing record, so they go through the pipeline rather
// than the store.
type Recovery interface {
	Resolver
	Reprocessor
}

// Handler serves dead-letter triage.
type Handler struct {
	sys        System
	recovery   Recovery
	logger     *slog.Logger
	pagination pagination.Config
}

func NewHandler(sys System, recovery Recovery, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		recovery:   recovery,
		logger:     logger.With("handler", "deadletter"),
		pagination: pagination,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:      "/dead-letters",
		Tags:        []string{"Dead Letters"},
		Description: "Triage of documents that failed processing",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: Spec.List},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find, OpenAPI: Spec.Find},
			{Method: "POST", Pattern: "/{id}/resolve", Handler: h.Resolve, OpenAPI: Spec.Resolve},
			{Method: "POST", Pattern: "/{id}/reprocess", Handler: h.Reprocess, OpenAPI: Spec.Reprocess},
		},
		Schemas: Spec.Schemas(),
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

	entry, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, entry)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	cmd, err := handlers.DecodeJSON[ResolveCommand](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	entry, err := h.recovery.Resolve(r.Context(), id, cmd)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, entry)
}

func (h *Handler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	newID, err := h.recovery.Reprocess(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, map[string]string{"file_id": newID.String()})
}
