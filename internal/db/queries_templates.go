package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/model"
)

const templateColumns = `id, name, description, width, height, background_path, background_mime,
	source_type, sha256, fields_json, created_by, created_at, updated_at`

func CreateTemplate(database *sql.DB, t *model.Template) error {
	fieldsJSON, err := marshalFields(t.Fields)
	if err != nil {
		return err
	}
	return withRetry("create template", func() error {
		_, err := database.Exec(
			`INSERT INTO templates (id, name, description, width, height, background_path, background_mime, source_type, sha256, fields_json, created_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Name, t.Description, t.Width, t.Height, t.BackgroundPath, t.BackgroundMime,
			t.SourceType, t.SHA256, fieldsJSON, t.CreatedBy,
		)
		return err
	})
}

func GetTemplate(database *sql.DB, id string) (*model.Template, error) {
	t, err := scanTemplate(database.QueryRow(`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func ListTemplates(database *sql.DB, limit, offset int) ([]model.Template, error) {
	rows, err := database.Query(
		`SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ReplaceTemplateFields swaps the whole field collection in one UPDATE so a
// concurrent reader sees either the old or the new set, never a mix.
func ReplaceTemplateFields(database *sql.DB, id string, fields []model.Field) (*model.Template, error) {
	fieldsJSON, err := marshalFields(fields)
	if err != nil {
		return nil, err
	}
	var t *model.Template
	err = withRetry("replace fields", func() error {
		var qerr error
		t, qerr = scanTemplate(database.QueryRow(
			`UPDATE templates SET fields_json = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
			 WHERE id = ? RETURNING `+templateColumns,
			fieldsJSON, id,
		))
		return qerr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// DeleteTemplate removes a template only when no certificate references it.
// The guard and the delete are one statement; the foreign key catches any
// certificate inserted in between.
func DeleteTemplate(database *sql.DB, id string) error {
	var affected int64
	err := withRetry("delete template", func() error {
		res, err := database.Exec(
			`DELETE FROM templates WHERE id = ?
			 AND NOT EXISTS (SELECT 1 FROM certificates WHERE template_id = ?)`,
			id, id,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if isForeignKey(err) {
		return apperr.ErrTemplateInUse
	}
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := database.QueryRow(`SELECT EXISTS (SELECT 1 FROM templates WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return apperr.ErrTemplateInUse
	}
	return apperr.NotFound("template")
}

func CountCertificatesByTemplate(database *sql.DB, templateID string) (int, error) {
	var n int
	err := database.QueryRow(`SELECT COUNT(*) FROM certificates WHERE template_id = ?`, templateID).Scan(&n)
	return n, err
}

func scanTemplate(s scanner) (*model.Template, error) {
	t := &model.Template{}
	var fieldsJSON string
	var createdAt, updatedAt SQLiteTime
	err := s.Scan(&t.ID, &t.Name, &t.Description, &t.Width, &t.Height, &t.BackgroundPath, &t.BackgroundMime,
		&t.SourceType, &t.SHA256, &fieldsJSON, &t.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &t.Fields); err != nil {
		return nil, fmt.Errorf("template %s: decode fields: %w", t.ID, err)
	}
	if t.Fields == nil {
		t.Fields = []model.Field{}
	}
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time
	return t, nil
}

func marshalFields(fields []model.Field) (string, error) {
	if fields == nil {
		fields = []model.Field{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}
