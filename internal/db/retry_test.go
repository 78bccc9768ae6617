package db

import (
	"errors"
	"testing"
)

func TestWithRetryBusy(t *testing.T) {
	calls := 0
	err := withRetry("test", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	err := withRetry("test", func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || calls != len(retryBackoff)+1 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}

func TestWithRetryOtherErrors(t *testing.T) {
	calls := 0
	want := errors.New("UNIQUE constraint failed")
	err := withRetry("test", func() error {
		calls++
		return want
	})
	if err != want || calls != 1 {
		t.Errorf("err=%v calls=%d", err, calls)
	}
}
