package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/batch"
	"github.com/YannKr/certstamp/internal/certs"
	"github.com/YannKr/certstamp/internal/model"
	"github.com/YannKr/certstamp/internal/sse"
	"github.com/YannKr/certstamp/internal/worker"
)

type issuerFunc func(ctx context.Context, req certs.Request) (*model.Certificate, error)

func (f issuerFunc) Issue(ctx context.Context, req certs.Request) (*model.Certificate, error) {
	return f(ctx, req)
}

var instant = issuerFunc(func(ctx context.Context, req certs.Request) (*model.Certificate, error) {
	return &model.Certificate{ID: req.Participant.Name, UniqueCode: "ABCDEFGH23"}, nil
})

func rows(n int) []batch.Row {
	out := make([]batch.Row, n)
	for i := range out {
		out[i] = batch.Row{Index: i + 1, Participant: model.Participant{
			Name: string(rune('a' + i)), DocumentID: "d", CertifierName: "c", RepresentativeName: "r",
		}}
	}
	return out
}

func waitFor(t *testing.T, p *worker.Pool, id string, want worker.State) *worker.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := p.Get(id)
		if !ok {
			t.Fatalf("batch %s vanished", id)
		}
		if snap.State == want {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("batch %s never reached %s", id, want)
	return nil
}

func TestSubmitRunsBatch(t *testing.T) {
	hub := sse.New()
	p := worker.NewPool(nil, instant, nil, hub, worker.Options{Workers: 1, Concurrency: 2})

	snap, err := p.Submit(batch.Common{TemplateID: "t"}, rows(3))
	if err != nil {
		t.Fatal(err)
	}
	if snap.State != worker.StateQueued || snap.Total != 3 {
		t.Errorf("initial snapshot = %+v", snap)
	}
	events, unsub := hub.Subscribe(worker.Topic(snap.ID))
	defer unsub()

	p.Start()
	defer p.Stop()

	done := waitFor(t, p, snap.ID, worker.StateDone)
	if done.Succeeded != 3 || len(done.Results) != 3 || done.FinishedAt == nil {
		t.Fatalf("final snapshot = %+v", done)
	}
	for i, res := range done.Results {
		if res.RowIndex != i+1 || !res.OK() {
			t.Errorf("results[%d] = %+v", i, res)
		}
	}

	var last sse.Event
	for evt := range events {
		last = evt
	}
	if last.Type != "done" {
		t.Errorf("last event = %q, want done", last.Type)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	p := worker.NewPool(nil, instant, nil, nil, worker.Options{Workers: 1, QueueSize: 1})
	if _, err := p.Submit(batch.Common{}, rows(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Submit(batch.Common{}, rows(1)); !errors.Is(err, apperr.ErrQueueFull) {
		t.Fatalf("err = %v, want QUEUE_FULL", err)
	}
}

func TestCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocking := issuerFunc(func(ctx context.Context, req certs.Request) (*model.Certificate, error) {
		once.Do(func() { close(started) })
		<-release
		return &model.Certificate{ID: req.Participant.Name}, nil
	})

	p := worker.NewPool(nil, blocking, nil, nil, worker.Options{Workers: 1, Concurrency: 1})
	p.Start()
	defer p.Stop()

	snap, err := p.Submit(batch.Common{}, rows(5))
	if err != nil {
		t.Fatal(err)
	}
	<-started
	if _, err := p.Cancel(snap.ID); err != nil {
		t.Fatal(err)
	}
	close(release)

	final := waitFor(t, p, snap.ID, worker.StateCancelled)
	if final.Succeeded != 1 || final.Cancelled != 4 {
		t.Errorf("succeeded=%d cancelled=%d", final.Succeeded, final.Cancelled)
	}
}

func TestUnknownBatch(t *testing.T) {
	p := worker.NewPool(nil, instant, nil, nil, worker.Options{})
	if _, ok := p.Get("nope"); ok {
		t.Error("Get found an unknown batch")
	}
	if _, err := p.Cancel("nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Cancel err = %v", err)
	}
}

func TestEvictFinished(t *testing.T) {
	p := worker.NewPool(nil, instant, nil, nil, worker.Options{Workers: 1})
	p.Start()
	defer p.Stop()

	snap, err := p.Submit(batch.Common{}, rows(1))
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, p, snap.ID, worker.StateDone)

	if n := p.Evict(time.Hour); n != 0 {
		t.Errorf("evicted %d fresh jobs", n)
	}
	if n := p.Evict(0); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
	if _, ok := p.Get(snap.ID); ok {
		t.Error("evicted job still visible")
	}
}

func TestRunSynchronously(t *testing.T) {
	p := worker.NewPool(nil, instant, nil, nil, worker.Options{})
	in := rows(3)
	in[1].Participant.CertifierName = ""
	report := p.Run(context.Background(), batch.Common{}, in)
	if report.Succeeded != 2 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
}
