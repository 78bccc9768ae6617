package db

import (
	"log/slog"
	"strings"
	"time"
)

var retryBackoff = []time.Duration{
	25 * time.Millisecond,
	100 * time.Millisecond,
}

// isBusy reports whether err is a lock contention error that is safe to
// retry.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withRetry runs fn up to len(retryBackoff)+1 times while it fails with a
// busy error.
func withRetry(op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if !isBusy(err) || attempt >= len(retryBackoff) {
			return err
		}
		slog.Warn("db busy, retrying", "op", op, "attempt", attempt+1)
		time.Sleep(retryBackoff[attempt])
	}
}

func isUnique(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

func isForeignKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY")
}
