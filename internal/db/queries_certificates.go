package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/YannKr/certstamp/internal/model"
)

const certificateColumns = `id, template_id, unique_code, participant_name, document_id, certifier_name,
	representative_name, representative_name_2, representative_name_3, event_name, course_name,
	issue_date, is_valid, validation_count, hash_code, artifact_path, artifact_type, artifact_size,
	created_by, created_at`

// ReserveCode claims code in issued_codes. It returns false when the code
// was already issued at any point in the past.
func ReserveCode(database *sql.DB, code string) (bool, error) {
	var affected int64
	err := withRetry("reserve code", func() error {
		res, err := database.Exec(`INSERT INTO issued_codes (code) VALUES (?) ON CONFLICT(code) DO NOTHING`, code)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// CodeReserver exposes ReserveCode to the code generator.
type CodeReserver struct {
	DB *sql.DB
}

func (r CodeReserver) Reserve(_ context.Context, code string) (bool, error) {
	return ReserveCode(r.DB, code)
}

func CreateCertificate(database *sql.DB, c *model.Certificate) error {
	err := withRetry("create certificate", func() error {
		_, err := database.Exec(
			`INSERT INTO certificates (id, template_id, unique_code, participant_name, document_id, certifier_name,
				representative_name, representative_name_2, representative_name_3, event_name, course_name,
				issue_date, is_valid, validation_count, hash_code, artifact_path, artifact_type, artifact_size, created_by)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
			c.ID, c.TemplateID, c.UniqueCode, c.ParticipantName, c.DocumentID, c.CertifierName,
			c.RepresentativeName, c.RepresentativeName2, c.RepresentativeName3, c.EventName, c.CourseName,
			formatTime(c.IssueDate), c.IsValid, c.HashCode, c.ArtifactPath, c.ArtifactType, c.ArtifactSize, c.CreatedBy,
		)
		return err
	})
	if isUnique(err) {
		return fmt.Errorf("certificate %s: duplicate unique code %s: %w", c.ID, c.UniqueCode, err)
	}
	return err
}

func GetCertificate(database *sql.DB, id string) (*model.Certificate, error) {
	c, err := scanCertificate(database.QueryRow(`SELECT `+certificateColumns+` FROM certificates WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func GetCertificateByCode(database *sql.DB, code string) (*model.Certificate, error) {
	c, err := scanCertificate(database.QueryRow(`SELECT `+certificateColumns+` FROM certificates WHERE unique_code = ?`, code))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

type CertificateFilter struct {
	TemplateID string
	Search     string
	Limit      int
	Offset     int
}

func ListCertificates(database *sql.DB, f CertificateFilter) ([]model.Certificate, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE 1 = 1`
	var args []any
	if f.TemplateID != "" {
		query += ` AND template_id = ?`
		args = append(args, f.TemplateID)
	}
	if f.Search != "" {
		query += ` AND (participant_name LIKE ? OR document_id LIKE ? OR unique_code LIKE ?)`
		like := "%" + f.Search + "%"
		args = append(args, like, like, like)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// RecordValidation increments validation_count for code and logs the
// validation, both in one transaction. The increment is a single UPDATE so
// concurrent verifications never lose a count. Returns nil, nil when no
// certificate carries the code.
func RecordValidation(database *sql.DB, code, ipAddress, userAgent string) (*model.Certificate, error) {
	var c *model.Certificate
	err := withRetry("record validation", func() error {
		tx, err := database.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		c, err = scanCertificate(tx.QueryRow(
			`UPDATE certificates SET validation_count = validation_count + 1
			 WHERE unique_code = ? RETURNING `+certificateColumns, code,
		))
		if err == sql.ErrNoRows {
			c = nil
			return nil
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(
			`INSERT INTO validations (id, certificate_id, ip_address, user_agent) VALUES (?, ?, ?, ?)`,
			uuid.New().String(), c.ID, ipAddress, userAgent,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func ListValidations(database *sql.DB, certificateID string, limit int) ([]model.Validation, error) {
	rows, err := database.Query(
		`SELECT id, certificate_id, ip_address, user_agent, validated_at
		 FROM validations WHERE certificate_id = ? ORDER BY validated_at DESC LIMIT ?`,
		certificateID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Validation
	for rows.Next() {
		var v model.Validation
		var at SQLiteTime
		if err := rows.Scan(&v.ID, &v.CertificateID, &v.IPAddress, &v.UserAgent, &at); err != nil {
			return nil, err
		}
		v.ValidatedAt = at.Time
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanCertificate(s scanner) (*model.Certificate, error) {
	c := &model.Certificate{}
	var rep2, rep3, event, course sql.NullString
	var issueDate, createdAt SQLiteTime
	err := s.Scan(&c.ID, &c.TemplateID, &c.UniqueCode, &c.ParticipantName, &c.DocumentID, &c.CertifierName,
		&c.RepresentativeName, &rep2, &rep3, &event, &course,
		&issueDate, &c.IsValid, &c.ValidationCount, &c.HashCode, &c.ArtifactPath, &c.ArtifactType, &c.ArtifactSize,
		&c.CreatedBy, &createdAt)
	if err != nil {
		return nil, err
	}
	c.RepresentativeName2 = nullString(rep2)
	c.RepresentativeName3 = nullString(rep3)
	c.EventName = nullString(event)
	c.CourseName = nullString(course)
	c.IssueDate = issueDate.Time
	c.CreatedAt = createdAt.Time
	return c, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
