// Package certs issues certificates: it reserves a code, renders the
// artifact, stores it and records the certificate as one unit.
package certs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/assets"
	"github.com/YannKr/certstamp/internal/bundle"
	"github.com/YannKr/certstamp/internal/codegen"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/render"
	"github.com/YannKr/certstamp/internal/webhook"
)

// SpaceChecker reports whether the data volume is too full to accept new
// artifacts.
type SpaceChecker interface {
	LowSpace() bool
}

type Service struct {
	DB         *sql.DB
	Assets     *assets.Store
	Engine     *render.Engine
	Codes      *codegen.Generator
	Webhook    *webhook.Notifier
	Disk       SpaceChecker
	DateLayout string
	Now        func() time.Time
}

// Request is everything needed to issue one certificate.
type Request struct {
	TemplateID  string
	EventName   string
	CourseName  string
	Participant model.Participant
	Actor       string
	IPAddress   string
}

// MissingColumns lists the required participant fields that are blank.
func MissingColumns(p model.Participant) []string {
	var missing []string
	for _, c := range []struct {
		name, value string
	}{
		{"participant_name", p.Name},
		{"document_id", p.DocumentID},
		{"certifier_name", p.CertifierName},
		{"representative_name", p.RepresentativeName},
	} {
		if strings.TrimSpace(c.value) == "" {
			missing = append(missing, c.name)
		}
	}
	return missing
}

// Issue creates one certificate. It either returns a certificate whose
// artifact is stored, or an error and no record.
func (s *Service) Issue(ctx context.Context, req Request) (*model.Certificate, error) {
	if missing := MissingColumns(req.Participant); len(missing) > 0 {
		return nil, apperr.ErrMissingField.WithMessage("missing required fields: %s", strings.Join(missing, ", "))
	}
	if s.Disk != nil && s.Disk.LowSpace() {
		return nil, apperr.ErrInsufficientSpace
	}

	tpl, err := db.GetTemplate(s.DB, req.TemplateID)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if tpl == nil {
		return nil, apperr.NotFound("template")
	}
	background, err := s.Assets.Get(tpl.BackgroundPath)
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("read background: %w", err))
	}

	code, err := s.Codes.Generate(ctx)
	if err != nil {
		return nil, err
	}

	p := req.Participant
	cert := &model.Certificate{
		ID:                  uuid.New().String(),
		TemplateID:          tpl.ID,
		UniqueCode:          code,
		ParticipantName:     strings.TrimSpace(p.Name),
		DocumentID:          strings.TrimSpace(p.DocumentID),
		CertifierName:       strings.TrimSpace(p.CertifierName),
		RepresentativeName:  strings.TrimSpace(p.RepresentativeName),
		RepresentativeName2: model.StringPtr(strings.TrimSpace(p.RepresentativeName2)),
		RepresentativeName3: model.StringPtr(strings.TrimSpace(p.RepresentativeName3)),
		EventName:           model.StringPtr(strings.TrimSpace(req.EventName)),
		CourseName:          model.StringPtr(strings.TrimSpace(req.CourseName)),
		IssueDate:           s.now(),
		IsValid:             true,
		CreatedBy:           req.Actor,
	}
	cert.HashCode = HashCode(cert)

	art, err := s.render(ctx, tpl, background, cert)
	if err != nil {
		return nil, err
	}

	cert.ArtifactPath = assets.CertificatePath(tpl.ID, cert.ID, ".png")
	cert.ArtifactType = art.ContentType
	cert.ArtifactSize = int64(len(art.Data))
	if err := s.Assets.Put(cert.ArtifactPath, art.Data); err != nil {
		return nil, apperr.Storage(fmt.Errorf("write artifact: %w", err))
	}

	if err := ctx.Err(); err != nil {
		s.discard(cert)
		return nil, err
	}
	if err := db.CreateCertificate(s.DB, cert); err != nil {
		s.discard(cert)
		return nil, apperr.Storage(err)
	}

	slog.Info("certificate issued", "id", cert.ID, "template", tpl.ID, "code", cert.UniqueCode)
	db.InsertAuditLog(s.DB, req.Actor, "certificate.create", "certificate", cert.ID, cert.UniqueCode, req.IPAddress)
	s.Webhook.Dispatch(ctx, webhook.EventCertificateIssued, map[string]interface{}{
		"certificate_id": cert.ID,
		"template_id":    cert.TemplateID,
		"unique_code":    cert.UniqueCode,
	})
	return cert, nil
}

// render retries once when the failure is transient.
func (s *Service) render(ctx context.Context, tpl *model.Template, background []byte, cert *model.Certificate) (*render.Artifact, error) {
	values := cert.FieldValues(s.dateLayout())
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		var art *render.Artifact
		art, err = s.Engine.Render(ctx, tpl, background, values)
		if err == nil {
			return art, nil
		}
		if !apperr.IsTransient(err) || ctx.Err() != nil {
			break
		}
		slog.Warn("render failed, retrying", "template", tpl.ID, "attempt", attempt, "error", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, apperr.ErrRenderTimeout.Wrap(err)
	}
	return nil, err
}

func (s *Service) discard(cert *model.Certificate) {
	if err := s.Assets.Remove(cert.ArtifactPath); err != nil {
		slog.Error("remove orphaned artifact", "path", cert.ArtifactPath, "error", err)
	}
}

func (s *Service) Get(id string) (*model.Certificate, error) {
	c, err := db.GetCertificate(s.DB, id)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if c == nil {
		return nil, apperr.NotFound("certificate")
	}
	return c, nil
}

func (s *Service) List(f db.CertificateFilter) ([]model.Certificate, error) {
	list, err := db.ListCertificates(s.DB, f)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return list, nil
}

// Artifact returns the certificate and its stored image.
func (s *Service) Artifact(id string) (*model.Certificate, []byte, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Assets.Get(c.ArtifactPath)
	if err != nil {
		return nil, nil, apperr.Storage(fmt.Errorf("read artifact %s: %w", c.ID, err))
	}
	return c, data, nil
}

// PDF returns one certificate as a single-page PDF.
func (s *Service) PDF(id string) (*model.Certificate, []byte, error) {
	c, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Bundle([]string{c.ID})
	return c, data, err
}

// Bundle renders the stored artifacts of ids into one PDF in request order.
// Unknown ids fail the whole bundle.
func (s *Service) Bundle(ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, apperr.ErrInvalidInput.WithMessage("ids must not be empty")
	}
	pages := make([]bundle.Page, 0, len(ids))
	for _, id := range ids {
		c, data, err := s.Artifact(id)
		if err != nil {
			return nil, err
		}
		tpl, err := db.GetTemplate(s.DB, c.TemplateID)
		if err != nil {
			return nil, apperr.Storage(err)
		}
		page := bundle.Page{Name: c.UniqueCode, PNG: data}
		if tpl != nil {
			page.Width, page.Height = tpl.Width, tpl.Height
		}
		if page.Width == 0 {
			cfgW, cfgH, err := pngSize(data)
			if err != nil {
				return nil, apperr.Render(err, false)
			}
			page.Width, page.Height = cfgW, cfgH
		}
		pages = append(pages, page)
	}
	out, err := bundle.PDF(pages)
	if err != nil {
		return nil, apperr.Render(err, false)
	}
	return out, nil
}

// HashCode is the integrity digest exposed in the public view.
func HashCode(c *model.Certificate) string {
	h := sha256.New()
	h.Write([]byte(c.UniqueCode))
	h.Write([]byte(c.ParticipantName))
	h.Write([]byte(c.DocumentID))
	h.Write([]byte(c.IssueDate.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

func pngSize(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("decode artifact: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC().Truncate(time.Second)
}

func (s *Service) dateLayout() string {
	if s.DateLayout != "" {
		return s.DateLayout
	}
	return "02/01/2006"
}
