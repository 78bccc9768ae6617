// Package verify looks certificates up by their public code.
package verify

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/codegen"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/webhook"
)

// maxCodeLen rejects obviously bogus input before it reaches the store.
const maxCodeLen = 64

type Service struct {
	DB      *sql.DB
	Webhook *webhook.Notifier
}

// Meta describes who asked.
type Meta struct {
	IPAddress string
	UserAgent string
}

// Verify returns the public view of the certificate carrying code and counts
// the call. Every successful call counts, repeated ones included. Lookup
// ignores case and surrounding whitespace.
func (s *Service) Verify(ctx context.Context, code string, meta Meta) (*model.CertificateView, error) {
	code = codegen.Normalize(code)
	if code == "" || len(code) > maxCodeLen {
		return nil, apperr.NotFound("certificate")
	}

	c, err := db.RecordValidation(s.DB, code, meta.IPAddress, meta.UserAgent)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if c == nil {
		slog.Info("verification miss", "ip", meta.IPAddress)
		return nil, apperr.NotFound("certificate")
	}

	slog.Info("certificate verified", "id", c.ID, "count", c.ValidationCount)
	s.Webhook.Dispatch(ctx, webhook.EventCertificateVerified, map[string]interface{}{
		"certificate_id":   c.ID,
		"unique_code":      c.UniqueCode,
		"validation_count": c.ValidationCount,
	})
	view := c.View()
	return &view, nil
}

// History lists the most recent validations of a certificate.
func (s *Service) History(certificateID string, limit int) ([]model.Validation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	list, err := db.ListValidations(s.DB, certificateID, limit)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return list, nil
}
