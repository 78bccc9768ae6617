package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/certstamp/internal/auth"
	"github.com/YannKr/certstamp/internal/certs"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/model"
)

type issueRequest struct {
	TemplateID          string `json:"template_id" validate:"required"`
	EventName           string `json:"event_name,omitempty" validate:"max=200"`
	CourseName          string `json:"course_name,omitempty" validate:"max=200"`
	ParticipantName     string `json:"participant_name" validate:"required,max=200"`
	DocumentID          string `json:"document_id" validate:"required,max=100"`
	CertifierName       string `json:"certifier_name" validate:"required,max=200"`
	RepresentativeName  string `json:"representative_name" validate:"required,max=200"`
	RepresentativeName2 string `json:"representative_name_2,omitempty" validate:"max=200"`
	RepresentativeName3 string `json:"representative_name_3,omitempty" validate:"max=200"`
}

type bundleRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
}

type apiValidation struct {
	IPAddress   string `json:"ip_address"`
	UserAgent   string `json:"user_agent"`
	ValidatedAt string `json:"validated_at"`
}

// APICertificateIssue handles POST /api/v1/certificates
func (h *Handler) APICertificateIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}

	cert, err := h.Certs.Issue(r.Context(), certs.Request{
		TemplateID: req.TemplateID,
		EventName:  req.EventName,
		CourseName: req.CourseName,
		Participant: model.Participant{
			Name:                req.ParticipantName,
			DocumentID:          req.DocumentID,
			CertifierName:       req.CertifierName,
			RepresentativeName:  req.RepresentativeName,
			RepresentativeName2: req.RepresentativeName2,
			RepresentativeName3: req.RepresentativeName3,
		},
		Actor:     auth.ActorFromContext(r.Context()),
		IPAddress: clientIP(r),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusCreated, cert)
}

// APICertificateList handles GET /api/v1/certificates
func (h *Handler) APICertificateList(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 50, 200)
	list, err := h.Certs.List(db.CertificateFilter{
		TemplateID: r.URL.Query().Get("template_id"),
		Search:     r.URL.Query().Get("q"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Certificate{}
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"certificates": list,
		"offset":       offset,
		"limit":        limit,
	})
}

// APICertificateGet handles GET /api/v1/certificates/{id}
func (h *Handler) APICertificateGet(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Certs.Get(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, cert)
}

// APICertificateValidations handles GET /api/v1/certificates/{id}/validations
func (h *Handler) APICertificateValidations(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Certs.Get(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	_, limit := pagination(r, 100, 500)
	list, err := h.Verify.History(cert.ID, limit)
	if err != nil {
		renderError(w, r, err)
		return
	}
	out := make([]apiValidation, 0, len(list))
	for _, v := range list {
		out = append(out, apiValidation{
			IPAddress:   v.IPAddress,
			UserAgent:   v.UserAgent,
			ValidatedAt: v.ValidatedAt.UTC().Format(time.RFC3339),
		})
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{
		"certificate_id":   cert.ID,
		"validation_count": cert.ValidationCount,
		"validations":      out,
	})
}
