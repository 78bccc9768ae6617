package db

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         string
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Detail     string
	IPAddress  string
	CreatedAt  time.Time
}

// InsertAuditLog writes the entry in the background. Audit failures are
// logged and never fail the request that caused them.
func InsertAuditLog(database *sql.DB, actor, action, targetType, targetID, detail, ipAddress string) {
	go func() {
		err := withRetry("audit log", func() error {
			_, err := database.Exec(
				`INSERT INTO audit_logs (id, actor, action, target_type, target_id, detail, ip_address) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				uuid.New().String(), actor, action, targetType, targetID, detail, ipAddress,
			)
			return err
		})
		if err != nil {
			slog.Warn("audit log insert failed", "action", action, "target", targetID, "error", err)
		}
	}()
}

func ListAuditLogs(database *sql.DB, limit, offset int, filterAction string) ([]AuditLog, error) {
	query := `SELECT id, actor, action, target_type, target_id, detail, ip_address, created_at FROM audit_logs`
	var args []any
	if filterAction != "" {
		query += ` WHERE action = ?`
		args = append(args, filterAction)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var l AuditLog
		var createdAt SQLiteTime
		if err := rows.Scan(&l.ID, &l.Actor, &l.Action, &l.TargetType, &l.TargetID, &l.Detail, &l.IPAddress, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt = createdAt.Time
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
