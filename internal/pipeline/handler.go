package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/invoice-pipeline/internal/intake"
	"github.com/JaimeStill/invoice-pipeline/pkg/handlers"
	"github.com/JaimeStill/invoice-pipeline/pkg/routes"
)

// Handler accepts invoice uploads.
type Handler struct {
	orch        *Orchestrator
	logger      *slog.Logger
	uploadLimit int64
}

func NewHandler(orch *Orchestrator, logger *slog.Logger, uploadLimit int64) *Handler {
	return &Handler{
		orch:        orch,
		logger:      logger.With("handler", "pipeline"),
		uploadLimit: uploadLimit,
	}
}

func (h *Handler) Routes() []routes.Route {
	return []routes.Route{
		{Method: "POST", Pattern: "", Handler: h.Upload, OpenAPI: Spec.Upload},
	}
}

// Upload reads the multipart "file" field and an optional "source" field and
// queues the submission. Validation happens in the pipeline so that rejected
// files still get a processing record.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.uploadLimit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrTooLarge)
			return
		}
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}

	sub := intake.NewSubmission(
		header.Filename,
		header.Header.Get("Content-Type"),
		data,
		intake.ParseSource(r.FormValue("source")),
	)

	id, err := h.orch.Submit(r.Context(), sub)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, map[string]string{"file_id": id.String()})
}
