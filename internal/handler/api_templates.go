package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/auth"
	"github.com/YannKr/certstamp/internal/layout"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/templates"
)

type apiTemplate struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	BackgroundMime string        `json:"background_mime"`
	SourceType     string        `json:"source_type"`
	SHA256         string        `json:"sha256"`
	Fields         []model.Field `json:"fields"`
	CreatedAt      string        `json:"created_at"`
	UpdatedAt      string        `json:"updated_at"`
}

func templateToAPI(t *model.Template) apiTemplate {
	fields := t.Fields
	if fields == nil {
		fields = []model.Field{}
	}
	return apiTemplate{
		ID:             t.ID,
		Name:           t.Name,
		Description:    t.Description,
		Width:          t.Width,
		Height:         t.Height,
		BackgroundMime: t.BackgroundMime,
		SourceType:     t.SourceType,
		SHA256:         t.SHA256,
		Fields:         fields,
		CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// fieldsRequest carries a whole field collection. When DisplayWidth is set
// the coordinates are in the editor's display space and are converted to
// native template pixels before validation.
type fieldsRequest struct {
	Fields       []model.Field `json:"fields" validate:"required,max=200"`
	DisplayWidth float64       `json:"display_width,omitempty" validate:"gte=0"`
}

func (req *fieldsRequest) native(tpl *model.Template) []model.Field {
	if req.DisplayWidth <= 0 {
		return req.Fields
	}
	scale := layout.DisplayScale(req.DisplayWidth, float64(tpl.Width))
	out := make([]model.Field, len(req.Fields))
	for i, f := range req.Fields {
		out[i] = scale.ToNative(f)
	}
	return out
}

// APITemplateCreate handles POST /api/v1/templates
func (h *Handler) APITemplateCreate(w http.ResponseWriter, r *http.Request) {
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

	file, _, err := r.FormFile("file")
	if err != nil {
		renderError(w, r, apperr.ErrMissingField.WithMessage("missing 'file' field in form"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.Cfg.MaxUploadBytes+1))
	if err != nil {
		renderJSONError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read upload")
		return
	}
	if int64(len(data)) > h.Cfg.MaxUploadBytes {
		renderJSONError(w, http.StatusRequestEntityTooLarge, "TOO_LARGE", fmt.Sprintf("upload exceeds %d bytes", h.Cfg.MaxUploadBytes))
		return
	}

	width, err := formInt(r, "width")
	if err != nil {
		renderError(w, r, err)
		return
	}
	height, err := formInt(r, "height")
	if err != nil {
		renderError(w, r, err)
		return
	}

	tpl, err := h.Templates.Create(r.Context(), templates.CreateRequest{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Width:       width,
		Height:      height,
		Data:        data,
		Actor:       auth.ActorFromContext(r.Context()),
		IPAddress:   clientIP(r),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, templateToAPI(tpl))
}

// APITemplateList handles GET /api/v1/templates
func (h *Handler) APITemplateList(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 50, 200)
	list, err := h.Templates.List(limit, offset)
	if err != nil {
		renderError(w, r, err)
		return
	}
	out := make([]apiTemplate, 0, len(list))
	for i := range list {
		out = append(out, templateToAPI(&list[i]))
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"templates": out,
		"offset":    offset,
		"limit":     limit,
	})
}

// APITemplateGet handles GET /api/v1/templates/{id}
func (h *Handler) APITemplateGet(w http.ResponseWriter, r *http.Request) {
	tpl, err := h.Templates.Get(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, templateToAPI(tpl))
}

// APITemplateBackground handles GET /api/v1/templates/{id}/background
func (h *Handler) APITemplateBackground(w http.ResponseWriter, r *http.Request) {
	tpl, data, err := h.Templates.Background(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", tpl.BackgroundMime)
	http.ServeContent(w, r, "", tpl.UpdatedAt, bytes.NewReader(data))
}

// APITemplateFields handles PUT /api/v1/templates/{id}/fields
func (h *Handler) APITemplateFields(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req fieldsRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	fields := req.Fields
	if req.DisplayWidth > 0 {
		tpl, err := h.Templates.Get(id)
		if err != nil {
			renderError(w, r, err)
			return
		}
		fields = req.native(tpl)
	}

	tpl, remap, err := h.Templates.ReplaceFields(id, fields, auth.ActorFromContext(r.Context()), clientIP(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"template": templateToAPI(tpl),
		"id_map":   remap,
	})
}

// APITemplatePreview handles POST /api/v1/templates/{id}/preview
//
// An empty body previews the stored layout; a fields body previews unsaved
// edits.
func (h *Handler) APITemplatePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var fields []model.Field
	var req fieldsRequest
	ok, err := h.decodeOptionalJSON(w, r, &req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if ok {
		fields = req.Fields
		if req.DisplayWidth > 0 {
			tpl, err := h.Templates.Get(id)
			if err != nil {
				renderError(w, r, err)
				return
			}
			fields = req.native(tpl)
		}
	}

	art, err := h.Templates.Preview(r.Context(), id, fields)
	if err != nil {
		renderError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(art.Data)
}

// APITemplateDelete handles DELETE /api/v1/templates/{id}
func (h *Handler) APITemplateDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Templates.Delete(r.Context(), chi.URLParam(r, "id"), auth.ActorFromContext(r.Context()), clientIP(r)); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func formInt(r *http.Request, key string) (int, error) {
	v := r.FormValue(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.ErrInvalidInput.WithMessage("%s must be an integer", key)
	}
	return n, nil
}
