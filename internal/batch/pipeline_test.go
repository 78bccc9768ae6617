package batch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/batch"
	"github.com/YannKr/certstamp/internal/certs"
	"github.com/YannKr/certstamp/internal/model"
)

type issuerFunc func(ctx context.Context, req certs.Request) (*model.Certificate, error)

func (f issuerFunc) Issue(ctx context.Context, req certs.Request) (*model.Certificate, error) {
	return f(ctx, req)
}

func okIssuer() issuerFunc {
	var n int64
	return func(ctx context.Context, req certs.Request) (*model.Certificate, error) {
		id := atomic.AddInt64(&n, 1)
		return &model.Certificate{ID: req.Participant.Name, UniqueCode: string(rune('A' + id)), TemplateID: req.TemplateID}, nil
	}
}

func rows(n int) []batch.Row {
	out := make([]batch.Row, n)
	for i := range out {
		out[i] = batch.Row{
			Index: i + 1,
			Participant: model.Participant{
				Name:               "p" + string(rune('1'+i)),
				DocumentID:         "doc",
				CertifierName:      "cert",
				RepresentativeName: "rep",
			},
		}
	}
	return out
}

func TestRunPartialFailure(t *testing.T) {
	in := rows(5)
	in[2].Participant.DocumentID = ""

	p := &batch.Pipeline{Issuer: okIssuer(), Concurrency: 3}
	report := p.Run(context.Background(), batch.Common{TemplateID: "t1"}, in)

	if report.Succeeded != 4 || report.Failed != 1 || report.Cancelled != 0 {
		t.Fatalf("succeeded=%d failed=%d cancelled=%d", report.Succeeded, report.Failed, report.Cancelled)
	}
	if len(report.Results) != 5 {
		t.Fatalf("len(results) = %d", len(report.Results))
	}
	for i, res := range report.Results {
		if res.RowIndex != i+1 {
			t.Errorf("results[%d].RowIndex = %d", i, res.RowIndex)
		}
		if i == 2 {
			var rve *batch.RowValidationError
			if !errors.As(res.Err, &rve) {
				t.Fatalf("row 3 err = %v, want RowValidationError", res.Err)
			}
			if rve.RowIndex != 3 || len(rve.MissingColumns) != 1 || rve.MissingColumns[0] != "document_id" {
				t.Errorf("row 3 error = %+v", rve)
			}
			if !errors.Is(res.Err, apperr.ErrRowValidation) {
				t.Error("RowValidationError does not match ErrRowValidation")
			}
			continue
		}
		if !res.OK() || res.Certificate.ID != in[i].Participant.Name {
			t.Errorf("row %d: %+v", i+1, res)
		}
		if res.Certificate.TemplateID != "t1" {
			t.Errorf("row %d template = %q", i+1, res.Certificate.TemplateID)
		}
	}
}

func TestRunRowTimeout(t *testing.T) {
	slow := issuerFunc(func(ctx context.Context, req certs.Request) (*model.Certificate, error) {
		if req.Participant.Name == "p2" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &model.Certificate{ID: req.Participant.Name}, nil
	})
	p := &batch.Pipeline{Issuer: slow, Concurrency: 2, RowTimeout: 20 * time.Millisecond}
	report := p.Run(context.Background(), batch.Common{}, rows(3))

	if report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("succeeded=%d failed=%d", report.Succeeded, report.Failed)
	}
	if err := report.Results[1].Err; !errors.Is(err, apperr.ErrRenderTimeout) {
		t.Errorf("row 2 err = %v, want RENDER_TIMEOUT", err)
	}
}

func TestRunCancelStopsNewRows(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	blocking := issuerFunc(func(ctx context.Context, req certs.Request) (*model.Certificate, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &model.Certificate{ID: req.Participant.Name}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	p := &batch.Pipeline{Issuer: blocking, Concurrency: 1}

	done := make(chan *batch.Report)
	go func() { done <- p.Run(ctx, batch.Common{}, rows(4)) }()

	<-started
	cancel()
	close(release)
	report := <-done

	if !report.Results[0].OK() {
		t.Errorf("in-flight row should complete, got %v", report.Results[0].Err)
	}
	for _, res := range report.Results[1:] {
		if !errors.Is(res.Err, apperr.ErrBatchCancelled) {
			t.Errorf("row %d err = %v, want BATCH_CANCELLED", res.RowIndex, res.Err)
		}
	}
	if report.Succeeded != 1 || report.Cancelled != 3 || report.Failed != 0 {
		t.Errorf("succeeded=%d failed=%d cancelled=%d", report.Succeeded, report.Failed, report.Cancelled)
	}
}

func TestRunReportsProgress(t *testing.T) {
	var calls []batch.Progress
	p := &batch.Pipeline{
		Issuer:      okIssuer(),
		Concurrency: 2,
		OnProgress:  func(pr batch.Progress) { calls = append(calls, pr) },
	}
	p.Run(context.Background(), batch.Common{}, rows(6))

	if len(calls) != 6 {
		t.Fatalf("progress calls = %d, want 6", len(calls))
	}
	for i, pr := range calls {
		if pr.Done != i+1 || pr.Total != 6 {
			t.Errorf("call %d: done=%d total=%d", i, pr.Done, pr.Total)
		}
	}
}

func TestRunIssuerErrorsAreCaptured(t *testing.T) {
	failing := issuerFunc(func(ctx context.Context, req certs.Request) (*model.Certificate, error) {
		if req.Participant.Name == "p1" {
			return nil, apperr.NotFound("template")
		}
		return &model.Certificate{ID: req.Participant.Name}, nil
	})
	p := &batch.Pipeline{Issuer: failing}
	report := p.Run(context.Background(), batch.Common{}, rows(2))
	if !errors.Is(report.Results[0].Err, apperr.ErrNotFound) || !report.Results[1].OK() {
		t.Errorf("results = %+v", report.Results)
	}
}
