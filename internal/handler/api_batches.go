package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/auth"
	"github.com/YannKr/certstamp/internal/batch"
)

// APIBatchCreate handles POST /api/v1/certificates/batch
//
// Without ?async=1 the batch runs inside the request and the per-row
// report is returned. With it the batch is queued and 202 carries the job.
func (h *Handler) APIBatchCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			renderJSONError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", fmt.Sprintf("upload exceeds %d bytes", h.Cfg.MaxUploadBytes))
			return
		}
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to parse multipart form")
		return
	}

	templateID := strings.TrimSpace(r.FormValue("template_id"))
	if templateID == "" {
		renderError(w, r, apperr.ErrMissingField.WithMessage("template_id is required"))
		return
	}
	if _, err := h.Templates.Get(templateID); err != nil {
		renderError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		renderError(w, r, apperr.ErrMissingField.WithMessage("missing 'file' field in form"))
		return
	}
	defer file.Close()

	rows, err := batch.Parse(file, header.Filename)
	if err != nil {
		renderError(w, r, err)
		return
	}

	common := batch.Common{
		TemplateID: templateID,
		EventName:  r.FormValue("event_name"),
		CourseName: r.FormValue("course_name"),
		Actor:      auth.ActorFromContext(r.Context()),
		IPAddress:  clientIP(r),
	}

	if r.URL.Query().Get("async") == "1" {
		snap, err := h.Batches.Submit(common, rows)
		if err != nil {
			renderError(w, r, err)
			return
		}
		w.Header().Set("Location", "/api/v1/batches/"+snap.ID)
		renderJSON(w, http.StatusAccepted, snap)
		return
	}

	report := h.Batches.Run(r.Context(), common, rows)
	renderJSON(w, http.StatusOK, report)
}

// APIBatchGet handles GET /api/v1/batches/{id}
func (h *Handler) APIBatchGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Batches.Get(chi.URLParam(r, "id"))
	if !ok {
		renderError(w, r, apperr.NotFound("batch"))
		return
	}
	renderJSON(w, http.StatusOK, snap)
}

// APIBatchCancel handles DELETE /api/v1/batches/{id}
func (h *Handler) APIBatchCancel(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Batches.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusAccepted, snap)
}
