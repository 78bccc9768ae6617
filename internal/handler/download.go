package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/certstamp/internal/auth"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/model"
)

// APICertificateDownload handles GET /api/v1/certificates/{id}/download[?format=pdf]
func (h *Handler) APICertificateDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		cert *model.Certificate
		data []byte
		err  error
	)
	ext, mime := "png", "image/png"
	if r.URL.Query().Get("format") == "pdf" {
		ext, mime = "pdf", "application/pdf"
		cert, data, err = h.Certs.PDF(id)
	} else {
		cert, data, err = h.Certs.Artifact(id)
		if cert != nil && cert.ArtifactType != "" {
			mime = cert.ArtifactType
		}
	}
	if err != nil {
		renderError(w, r, err)
		return
	}

	db.InsertAuditLog(h.DB, auth.ActorFromContext(r.Context()), "certificate.download", "certificate", cert.ID, ext, clientIP(r))
	slog.Info("certificate download", "id", cert.ID, "format", ext, "bytes", len(data))

	filename := fmt.Sprintf("certificate-%s.%s", cert.UniqueCode, ext)
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	http.ServeContent(w, r, filename, cert.CreatedAt, bytes.NewReader(data))
}

// APICertificateBundle handles POST /api/v1/certificates/bundle
func (h *Handler) APICertificateBundle(w http.ResponseWriter, r *http.Request) {
	var req bundleRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	data, err := h.Certs.Bundle(req.IDs)
	if err != nil {
		renderError(w, r, err)
		return
	}
	db.InsertAuditLog(h.DB, auth.ActorFromContext(r.Context()), "certificate.bundle", "certificate", "", fmt.Sprintf("%d certificates", len(req.IDs)), clientIP(r))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="certificates.pdf"`)
	w.Write(data)
}
