package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

func Open(dataDir string) (*sql.DB, error) {
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	database, err := sql.Open("sqlite", filepath.Join(dbDir, "certstamp.db")+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-20000",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			database.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	// One writer keeps counter increments and code reservations serialised.
	database.SetMaxOpenConns(1)

	return database, nil
}

// SQLiteTime scans TEXT, time.Time or unix-seconds columns into a time.Time.
type SQLiteTime struct {
	Time time.Time
}

var timeFormats = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (st *SQLiteTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		st.Time = time.Time{}
	case string:
		return st.parse(v)
	case []byte:
		return st.parse(string(v))
	case time.Time:
		st.Time = v
	case int64:
		st.Time = time.Unix(v, 0).UTC()
	default:
		return fmt.Errorf("SQLiteTime: unsupported type %T", src)
	}
	return nil
}

func (st *SQLiteTime) parse(v string) error {
	for _, f := range timeFormats {
		t, err := time.Parse(f, v)
		if err == nil {
			st.Time = t
			return nil
		}
	}
	return fmt.Errorf("SQLiteTime: cannot parse %q", v)
}

// formatTime is the inverse of SQLiteTime for values written by Go code.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type scanner interface {
	Scan(dest ...any) error
}
