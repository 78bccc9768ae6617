package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/batch"
	"github.com/YannKr/certstamp/internal/db"
	"github.com/YannKr/certstamp/internal/sse"
	"github.com/YannKr/certstamp/internal/webhook"
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateCancelled State = "cancelled"
)

// Snapshot is a point-in-time copy of a batch job. Results is only set once
// the job has finished.
type Snapshot struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	State      State          `json:"state"`
	Total      int            `json:"total"`
	Done       int            `json:"done"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Cancelled  int            `json:"cancelled"`
	Results    []batch.Result `json:"results,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

type job struct {
	snap   Snapshot
	common batch.Common
	rows   []batch.Row
	ctx    context.Context
	cancel context.CancelFunc
}

type Options struct {
	Workers     int
	QueueSize   int
	Concurrency int
	RowTimeout  time.Duration
}

// Pool runs batch jobs in the background. Jobs live in memory only.
type Pool struct {
	database *sql.DB
	issuer   batch.Issuer
	webhook  *webhook.Notifier
	sseHub   *sse.Hub
	opts     Options

	queue  chan *job
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[string]*job
}

func NewPool(database *sql.DB, issuer batch.Issuer, webhookNotifier *webhook.Notifier, sseHub *sse.Hub, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	base, cancel := context.WithCancel(context.Background())
	return &Pool{
		database: database,
		issuer:   issuer,
		webhook:  webhookNotifier,
		sseHub:   sseHub,
		opts:     opts,
		queue:    make(chan *job, opts.QueueSize),
		base:     base,
		cancel:   cancel,
		jobs:     make(map[string]*job),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	slog.Info("batch pool started", "workers", p.opts.Workers, "queue", p.opts.QueueSize)
}

// Stop cancels every job, so running batches stop issuing new rows, and
// waits for the workers to return.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
	slog.Info("batch pool stopped")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.base.Done():
			return
		case j := <-p.queue:
			slog.Info("processing batch", "worker", id, "batch", j.snap.ID, "rows", len(j.rows))
			p.process(j)
		}
	}
}

// Submit queues a batch and returns its initial snapshot. It fails with
// ErrQueueFull rather than block.
func (p *Pool) Submit(common batch.Common, rows []batch.Row) (*Snapshot, error) {
	ctx, cancel := context.WithCancel(p.base)
	j := &job{
		snap: Snapshot{
			ID:         uuid.New().String(),
			TemplateID: common.TemplateID,
			State:      StateQueued,
			Total:      len(rows),
			CreatedAt:  time.Now().UTC(),
		},
		common: common,
		rows:   rows,
		ctx:    ctx,
		cancel: cancel,
	}

	p.mu.Lock()
	select {
	case p.queue <- j:
		p.jobs[j.snap.ID] = j
	default:
		p.mu.Unlock()
		cancel()
		return nil, apperr.ErrQueueFull
	}
	snap := j.snap
	p.mu.Unlock()

	p.audit(common, snap.ID, len(rows))
	return &snap, nil
}

// Run executes a batch in the caller's goroutine.
func (p *Pool) Run(ctx context.Context, common batch.Common, rows []batch.Row) *batch.Report {
	id := uuid.New().String()
	p.audit(common, id, len(rows))
	report := p.pipeline(nil).Run(ctx, common, rows)
	p.completed(ctx, id, common, report)
	return report
}

func (p *Pool) Get(id string) (*Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return nil, false
	}
	snap := j.snap
	return &snap, true
}

// Cancel stops a job from starting new rows. Rows already issued stay
// issued.
func (p *Pool) Cancel(id string) (*Snapshot, error) {
	p.mu.Lock()
	j, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("batch")
	}
	j.cancel()
	slog.Info("batch cancel requested", "batch", id)
	snap, _ := p.Get(id)
	return snap, nil
}

// Evict forgets finished jobs older than maxAge.
func (p *Pool) Evict(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, j := range p.jobs {
		if j.snap.FinishedAt != nil && j.snap.FinishedAt.Before(cutoff) {
			delete(p.jobs, id)
			n++
		}
	}
	return n
}

// Topic is the SSE topic that carries a job's progress.
func Topic(id string) string {
	return "batch:" + id
}

func (p *Pool) pipeline(onProgress func(batch.Progress)) *batch.Pipeline {
	return &batch.Pipeline{
		Issuer:      p.issuer,
		Concurrency: p.opts.Concurrency,
		RowTimeout:  p.opts.RowTimeout,
		OnProgress:  onProgress,
	}
}

func (p *Pool) process(j *job) {
	p.mu.Lock()
	j.snap.State = StateRunning
	p.mu.Unlock()

	report := p.pipeline(func(pr batch.Progress) {
		p.mu.Lock()
		j.snap.Done = pr.Done
		j.snap.Succeeded = pr.Succeeded
		j.snap.Failed = pr.Failed
		j.snap.Cancelled = pr.Cancelled
		snap := j.snap
		p.mu.Unlock()
		p.publish(snap, "progress")
	}).Run(j.ctx, j.common, j.rows)

	now := time.Now().UTC()
	p.mu.Lock()
	j.snap.Results = report.Results
	j.snap.Succeeded = report.Succeeded
	j.snap.Failed = report.Failed
	j.snap.Cancelled = report.Cancelled
	j.snap.Done = len(report.Results)
	j.snap.FinishedAt = &now
	j.snap.State = StateDone
	if j.ctx.Err() != nil && report.Cancelled > 0 {
		j.snap.State = StateCancelled
	}
	snap := j.snap
	p.mu.Unlock()
	j.cancel()

	p.publish(snap, "done")
	if p.sseHub != nil {
		p.sseHub.CloseTopic(Topic(snap.ID))
	}
	p.completed(j.ctx, snap.ID, j.common, report)
}

func (p *Pool) publish(snap Snapshot, eventType string) {
	if p.sseHub == nil {
		return
	}
	snap.Results = nil
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("marshal batch progress", "batch", snap.ID, "error", err)
		return
	}
	p.sseHub.Publish(Topic(snap.ID), sse.Event{Type: eventType, Data: string(data)})
}

func (p *Pool) audit(common batch.Common, id string, rows int) {
	if p.database == nil {
		return
	}
	db.InsertAuditLog(p.database, common.Actor, "batch.create", "batch", id, fmt.Sprintf("%s: %d rows", common.TemplateID, rows), common.IPAddress)
}

func (p *Pool) completed(ctx context.Context, id string, common batch.Common, report *batch.Report) {
	p.webhook.Dispatch(ctx, webhook.EventBatchCompleted, map[string]interface{}{
		"batch_id":    id,
		"template_id": common.TemplateID,
		"succeeded":   report.Succeeded,
		"failed":      report.Failed,
		"cancelled":   report.Cancelled,
	})
}
