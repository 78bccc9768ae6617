// Package batch issues one certificate per input row. Rows fail
// independently; the run itself only fails on bad input.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/certs"
	"github.com/YannKr/certstamp/internal/model"
)

const (
	DefaultConcurrency = 4
	DefaultRowTimeout  = 30 * time.Second
)

type Issuer interface {
	Issue(ctx context.Context, req certs.Request) (*model.Certificate, error)
}

// Common holds the values shared by every row of a batch.
type Common struct {
	TemplateID string
	EventName  string
	CourseName string
	Actor      string
	IPAddress  string
}

// RowValidationError reports the required columns a row left blank.
type RowValidationError struct {
	RowIndex       int
	MissingColumns []string
}

func (e *RowValidationError) Error() string {
	return fmt.Sprintf("row %d: missing %s", e.RowIndex, strings.Join(e.MissingColumns, ", "))
}

func (e *RowValidationError) Unwrap() error { return apperr.ErrRowValidation }

type Result struct {
	RowIndex    int
	Certificate *model.Certificate
	Err         error
}

func (r Result) OK() bool { return r.Err == nil && r.Certificate != nil }

type Report struct {
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Cancelled int      `json:"cancelled"`
}

// Progress is sent after each row settles.
type Progress struct {
	Total     int
	Done      int
	Succeeded int
	Failed    int
	Cancelled int
	Last      Result
}

type Pipeline struct {
	Issuer      Issuer
	Concurrency int
	RowTimeout  time.Duration
	OnProgress  func(Progress)
}

// Run issues rows in parallel and returns results in row order. Cancelling
// ctx stops new rows from starting; rows already started run to completion
// under their own timeout and stay committed. Rows never started are
// reported with ErrBatchCancelled.
func (p *Pipeline) Run(ctx context.Context, common Common, rows []Row) *Report {
	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	report := &Report{Results: make([]Result, len(rows))}
	var mu sync.Mutex
	settle := func(i int, res Result) {
		mu.Lock()
		defer mu.Unlock()
		report.Results[i] = res
		switch {
		case res.OK():
			report.Succeeded++
		case errors.Is(res.Err, apperr.ErrBatchCancelled):
			report.Cancelled++
		default:
			report.Failed++
		}
		if p.OnProgress != nil {
			p.OnProgress(Progress{
				Total:     len(rows),
				Done:      report.Succeeded + report.Failed + report.Cancelled,
				Succeeded: report.Succeeded,
				Failed:    report.Failed,
				Cancelled: report.Cancelled,
				Last:      res,
			})
		}
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, row := range rows {
		if missing := certs.MissingColumns(row.Participant); len(missing) > 0 {
			settle(i, Result{RowIndex: row.Index, Err: &RowValidationError{RowIndex: row.Index, MissingColumns: missing}})
			continue
		}
		if ctx.Err() != nil {
			settle(i, Result{RowIndex: row.Index, Err: apperr.ErrBatchCancelled})
			continue
		}
		i, row := i, row
		g.Go(func() error {
			if ctx.Err() != nil {
				settle(i, Result{RowIndex: row.Index, Err: apperr.ErrBatchCancelled})
				return nil
			}
			settle(i, p.runRow(ctx, common, row))
			return nil
		})
	}
	g.Wait()

	slog.Info("batch finished", "template", common.TemplateID, "rows", len(rows),
		"succeeded", report.Succeeded, "failed", report.Failed, "cancelled", report.Cancelled)
	return report
}

func (p *Pipeline) runRow(ctx context.Context, common Common, row Row) Result {
	timeout := p.RowTimeout
	if timeout <= 0 {
		timeout = DefaultRowTimeout
	}
	rowCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	cert, err := p.Issuer.Issue(rowCtx, certs.Request{
		TemplateID:  common.TemplateID,
		EventName:   common.EventName,
		CourseName:  common.CourseName,
		Participant: row.Participant,
		Actor:       common.Actor,
		IPAddress:   common.IPAddress,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, apperr.ErrRenderTimeout) {
			err = apperr.ErrRenderTimeout.Wrap(err)
		}
		slog.Warn("batch row failed", "row", row.Index, "template", common.TemplateID, "error", err)
		return Result{RowIndex: row.Index, Err: err}
	}
	return Result{RowIndex: row.Index, Certificate: cert}
}
