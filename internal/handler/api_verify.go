package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/verify"
)

// APIVerify handles GET /api/v1/verify/{code}
//
// Public. Every successful lookup increments the certificate's
// validation count.
func (h *Handler) APIVerify(w http.ResponseWriter, r *http.Request) {
	view, err := h.Verify.Verify(r.Context(), chi.URLParam(r, "code"), verify.Meta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	renderJSON(w, http.StatusOK, view)
}

type apiAuditLog struct {
	Actor      string `json:"actor"`
	Action     string `json:"action"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Detail     string `json:"detail"`
	IPAddress  string `json:"ip_address"`
	CreatedAt  string `json:"created_at"`
}

// AdminAudit handles GET /api/v1/admin/audit?action=&offset=&limit=
func (h *Handler) AdminAudit(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r, 100, 500)
	logs, err := db.ListAuditLogs(h.DB, limit, offset, r.URL.Query().Get("action"))
	if err != nil {
		renderError(w, r, apperr.Storage(err))
		return
	}
	out := make([]apiAuditLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, apiAuditLog{
			Actor:      l.Actor,
			Action:     l.Action,
			TargetType: l.TargetType,
			TargetID:   l.TargetID,
			Detail:     l.Detail,
			IPAddress:  l.IPAddress,
			CreatedAt:  l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	renderJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
}
