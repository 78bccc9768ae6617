package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// tempAge is how old an unfinished asset write must be before it is swept.
const tempAge = time.Hour

// DefaultInterval is used when Interval is not positive.
const DefaultInterval = 10 * time.Minute

// Evicter forgets finished batch jobs.
type Evicter interface {
	Evict(maxAge time.Duration) int
}

// Sweeper removes abandoned temporary files.
type Sweeper interface {
	SweepTemp(age time.Duration) (int, error)
}

type Cleaner struct {
	Batches   Evicter
	Assets    Sweeper
	Retention time.Duration
	Interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

func (c *Cleaner) Start(ctx context.Context) {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	slog.Info("cleanup scheduler started", "interval", c.Interval)
}

func (c *Cleaner) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	slog.Info("cleanup scheduler stopped")
}

func (c *Cleaner) loop(ctx context.Context) {
	defer close(c.done)

	c.RunOnce()

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

func (c *Cleaner) RunOnce() {
	if c.Batches != nil {
		if n := c.Batches.Evict(c.Retention); n > 0 {
			slog.Info("cleanup: evicted finished batches", "count", n)
		}
	}
	if c.Assets != nil {
		n, err := c.Assets.SweepTemp(tempAge)
		if err != nil {
			slog.Error("cleanup: sweep temp files", "error", err)
		} else if n > 0 {
			slog.Info("cleanup: removed stale temp files", "count", n)
		}
	}
}
