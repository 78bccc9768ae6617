package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the router. verifyRL guards the public verification
// endpoint; apiRL guards everything behind an API key.
func (h *Handler) Routes(verifyRL, apiRL *RateLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		// Public verification (rate-limited)
		r.With(verifyRL.Middleware).Get("/verify/{code}", h.APIVerify)

		// Bearer API key
		r.Group(func(r chi.Router) {
			r.Use(apiRL.Middleware)
			r.Use(h.requireAPIAuth)

			r.Get("/templates", h.APITemplateList)
			r.Get("/templates/{id}", h.APITemplateGet)
			r.Get("/templates/{id}/background", h.APITemplateBackground)

			r.Get("/certificates", h.APICertificateList)
			r.Get("/certificates/{id}", h.APICertificateGet)
			r.Get("/certificates/{id}/download", h.APICertificateDownload)
			r.Get("/certificates/{id}/validations", h.APICertificateValidations)
			r.Post("/certificates/bundle", h.APICertificateBundle)

			r.Get("/batches/{id}", h.APIBatchGet)
			r.Get("/batches/{id}/events", h.BatchSSE)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireWrite)

				r.Post("/templates", h.APITemplateCreate)
				r.Put("/templates/{id}/fields", h.APITemplateFields)
				r.Post("/templates/{id}/preview", h.APITemplatePreview)

				r.Post("/certificates", h.APICertificateIssue)
				r.Post("/certificates/batch", h.APIBatchCreate)

				r.Delete("/batches/{id}", h.APIBatchCancel)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.RequireAdmin)

				r.Delete("/templates/{id}", h.APITemplateDelete)
				r.Get("/admin/audit", h.AdminAudit)
				r.Get("/admin/storage", h.AdminStorage)
			})
		})
	})

	return r
}
