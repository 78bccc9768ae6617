// Package templates manages certificate templates: the background asset, its
// native size and the field layout.
package templates

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/assets"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/layout"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/render"
	"github.com/YannKr/certstamp/internal/webhook"
)

type Service struct {
	DB         *sql.DB
	Assets     *assets.Store
	Engine     *render.Engine
	Webhook    *webhook.Notifier
	DateLayout string
}

type CreateRequest struct {
	Name        string
	Description string
	// Width and Height override the asset's natural size when positive.
	Width     int
	Height    int
	Data      []byte
	Actor     string
	IPAddress string
}

// Create stores a new template. The asset is decoded once to confirm it is
// a supported image or PDF and to learn its natural size.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Template, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.ErrMissingField.WithMessage("name is required")
	}
	if len(req.Data) == 0 {
		return nil, apperr.ErrUnsupportedAsset.WithMessage("background file is empty")
	}
	if req.Width < 0 || req.Height < 0 {
		return nil, apperr.ErrInvalidGeometry.WithMessage("width and height overrides must be positive")
	}

	bg, err := s.Engine.Inspect(ctx, req.Data)
	if err != nil {
		return nil, err
	}

	tpl := &model.Template{
		ID:             uuid.New().String(),
		Name:           name,
		Description:    strings.TrimSpace(req.Description),
		Width:          bg.Width,
		Height:         bg.Height,
		BackgroundMime: bg.Mime,
		SourceType:     bg.SourceType,
		SHA256:         assets.SHA256Bytes(req.Data),
		Fields:         []model.Field{},
		CreatedBy:      req.Actor,
	}
	if req.Width > 0 {
		tpl.Width = req.Width
	}
	if req.Height > 0 {
		tpl.Height = req.Height
	}
	tpl.BackgroundPath = assets.TemplatePath(tpl.ID, assets.MimeToExt[bg.Mime])

	if err := s.Assets.Put(tpl.BackgroundPath, req.Data); err != nil {
		return nil, apperr.Storage(fmt.Errorf("write background: %w", err))
	}
	if err := db.CreateTemplate(s.DB, tpl); err != nil {
		if rmErr := s.Assets.Remove(tpl.BackgroundPath); rmErr != nil {
			slog.Warn("orphaned template background", "id", tpl.ID, "path", tpl.BackgroundPath, "error", rmErr)
		}
		return nil, apperr.Storage(err)
	}

	slog.Info("template created", "id", tpl.ID, "size", fmt.Sprintf("%dx%d", tpl.Width, tpl.Height), "source", tpl.SourceType)
	db.InsertAuditLog(s.DB, req.Actor, "template.create", "template", tpl.ID, tpl.Name, req.IPAddress)
	return s.Get(tpl.ID)
}

func (s *Service) Get(id string) (*model.Template, error) {
	tpl, err := db.GetTemplate(s.DB, id)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if tpl == nil {
		return nil, apperr.NotFound("template")
	}
	return tpl, nil
}

func (s *Service) List(limit, offset int) ([]model.Template, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := db.ListTemplates(s.DB, limit, offset)
	if err != nil {
		return nil, apperr.Storage(err)
	}
	return list, nil
}

// ReplaceFields validates fields and swaps the template's whole collection.
// Temporary editor ids are replaced with durable ones; the returned map goes
// from each submitted temporary id to its stored id.
func (s *Service) ReplaceFields(id string, fields []model.Field, actor, ip string) (*model.Template, map[string]string, error) {
	next := make([]model.Field, len(fields))
	copy(next, fields)
	if err := layout.ValidateAll(next); err != nil {
		return nil, nil, err
	}
	remap := layout.AssignDurableIDs(next, nil)

	tpl, err := db.ReplaceTemplateFields(s.DB, id, next)
	if err != nil {
		return nil, nil, apperr.Storage(err)
	}
	if tpl == nil {
		return nil, nil, apperr.NotFound("template")
	}

	db.InsertAuditLog(s.DB, actor, "template.update", "template", id, fmt.Sprintf("%d fields", len(next)), ip)
	return tpl, remap, nil
}

// Delete removes a template that no certificate references.
func (s *Service) Delete(ctx context.Context, id, actor, ip string) error {
	tpl, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := db.DeleteTemplate(s.DB, id); err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return apperr.Storage(err)
		}
		return err
	}
	if err := s.Assets.Remove(tpl.BackgroundPath); err != nil {
		slog.Warn("remove template background", "id", id, "error", err)
	}
	s.Engine.Forget(id)

	slog.Info("template deleted", "id", id)
	db.InsertAuditLog(s.DB, actor, "template.delete", "template", id, tpl.Name, ip)
	s.Webhook.Dispatch(ctx, webhook.EventTemplateDeleted, map[string]string{"template_id": id})
	return nil
}

// Background returns the stored background asset.
func (s *Service) Background(id string) (*model.Template, []byte, error) {
	tpl, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.Assets.Get(tpl.BackgroundPath)
	if err != nil {
		return nil, nil, apperr.Storage(fmt.Errorf("read background: %w", err))
	}
	return tpl, data, nil
}

// SampleCertificate fills every field with a placeholder so a layout can be
// previewed before anything is issued.
func SampleCertificate() *model.Certificate {
	return &model.Certificate{
		UniqueCode:          "SAMPLE2345",
		ParticipantName:     "Participant Name",
		DocumentID:          "00000000",
		CertifierName:       "Certifier Name",
		RepresentativeName:  "Representative Name",
		RepresentativeName2: model.StringPtr("Second Representative"),
		RepresentativeName3: model.StringPtr("Third Representative"),
		IssueDate:           time.Now().UTC(),
	}
}

// Preview renders the template with sample values. Nothing is stored. When
// fields is non-nil it is validated and rendered instead of the stored
// layout.
func (s *Service) Preview(ctx context.Context, id string, fields []model.Field) (*render.Artifact, error) {
	tpl, data, err := s.Background(id)
	if err != nil {
		return nil, err
	}
	if fields != nil {
		next := make([]model.Field, len(fields))
		copy(next, fields)
		if err := layout.ValidateAll(next); err != nil {
			return nil, err
		}
		tpl.Fields = next
	}
	layoutStr := s.DateLayout
	if layoutStr == "" {
		layoutStr = "02/01/2006"
	}
	return s.Engine.Render(ctx, tpl, data, SampleCertificate().FieldValues(layoutStr))
}
