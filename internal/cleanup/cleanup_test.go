package cleanup_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YannKr/certstamp/internal/cleanup"
)

type fakeEvicter struct {
	calls  int32
	maxAge time.Duration
}

func (f *fakeEvicter) Evict(maxAge time.Duration) int {
	atomic.AddInt32(&f.calls, 1)
	f.maxAge = maxAge
	return 1
}

type fakeSweeper struct {
	calls int32
	err   error
}

func (f *fakeSweeper) SweepTemp(time.Duration) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return 2, f.err
}

func TestRunOnce(t *testing.T) {
	ev := &fakeEvicter{}
	sw := &fakeSweeper{err: errors.New("disk gone")}
	c := &cleanup.Cleaner{Batches: ev, Assets: sw, Retention: 3 * time.Hour}
	c.RunOnce()
	if ev.calls != 1 || ev.maxAge != 3*time.Hour {
		t.Errorf("evict calls=%d maxAge=%v", ev.calls, ev.maxAge)
	}
	if sw.calls != 1 {
		t.Errorf("sweep calls = %d", sw.calls)
	}
}

func TestStartRunsImmediately(t *testing.T) {
	ev := &fakeEvicter{}
	c := &cleanup.Cleaner{Batches: ev, Interval: time.Hour}
	c.Start(context.Background())
	c.Stop()
	if atomic.LoadInt32(&ev.calls) != 1 {
		t.Errorf("evict calls = %d, want 1", ev.calls)
	}
}

func TestStartDefaultsInterval(t *testing.T) {
	for _, iv := range []time.Duration{0, -time.Second} {
		ev := &fakeEvicter{}
		c := &cleanup.Cleaner{Batches: ev, Interval: iv}
		c.Start(context.Background())
		c.Stop()
		if c.Interval != cleanup.DefaultInterval {
			t.Errorf("interval %v became %v, want %v", iv, c.Interval, cleanup.DefaultInterval)
		}
		if atomic.LoadInt32(&ev.calls) != 1 {
			t.Errorf("evict calls = %d, want 1", ev.calls)
		}
	}
}
