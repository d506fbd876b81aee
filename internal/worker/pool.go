package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/assay/internal/apperr"
	"github.com/ternarybob/assay/internal/common"
	"github.com/ternarybob/assay/internal/interfaces"
	"github.com/ternarybob/assay/internal/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// MaxConcurrency caps the number of concurrent workers.
const MaxConcurrency = 10

// Task processes a single input path of a batch.
type Task func(ctx context.Context, path string) (interface{}, error)

// Pool runs a Task over many inputs with a bounded number of workers. A failing
// item is recorded against its own path and never cancels its siblings.
type Pool struct {
	logger      arbor.ILogger
	concurrency int
	limiter     *rate.Limiter
	history     interfaces.HistoryStorage
}

// Option configures the Pool.
type Option func(*Pool)

// WithConcurrency sets the number of workers, clamped to 1..MaxConcurrency.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		p.concurrency = n
	}
}

// WithDelay paces item starts to at most one per delay across all workers.
func WithDelay(delay time.Duration) Option {
	return func(p *Pool) {
		if delay > 0 {
			p.limiter = rate.NewLimiter(rate.Every(delay), 1)
		}
	}
}

// WithHistory records every completed run.
func WithHistory(history interfaces.HistoryStorage) Option {
	return func(p *Pool) {
		p.history = history
	}
}

// NewPool creates a pool. Without options it runs one item at a time.
func NewPool(logger arbor.ILogger, opts ...Option) *Pool {
	p := &Pool{
		logger:      logger,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	if p.concurrency > MaxConcurrency {
		p.concurrency = MaxConcurrency
	}
	return p
}

// Concurrency returns the effective worker count.
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// Run processes every path and returns the report in input order. It only
// stops early when ctx is cancelled, in which case the remaining items are
// recorded as failed with the context error.
func (p *Pool) Run(ctx context.Context, operation string, paths []string, task Task) *models.BatchReport {
	report := &models.BatchReport{
		Operation: operation,
		Items:     make([]models.BatchItem, len(paths)),
		StartedAt: time.Now(),
	}

	p.logger.Info().
		Str("operation", operation).
		Int("items", len(paths)).
		Int("concurrency", p.concurrency).
		Msg("Starting batch")

	// Each worker writes only its own slot, so the slice needs no lock.
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			report.Items[i] = p.process(ctx, path, task)
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range report.Items {
		if item.Succeeded() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	report.Elapsed = time.Since(report.StartedAt)

	p.logger.Info().
		Str("operation", operation).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Dur("elapsed", report.Elapsed).
		Msg("Batch completed")

	p.record(ctx, report)
	return report
}

func (p *Pool) process(ctx context.Context, path string, task Task) models.BatchItem {
	item := models.BatchItem{Path: path}
	start := time.Now()

	err := ctx.Err()
	if err == nil && p.limiter != nil {
		err = p.limiter.Wait(ctx)
	}
	if err == nil {
		item.Output, err = p.runTask(ctx, path, task)
	}
	item.Duration = time.Since(start)

	if err != nil {
		item.Err = err
		item.Error = err.Error()
		item.Kind = string(apperr.KindOf(err))
		p.logger.Warn().
			Err(err).
			Str("path", path).
			Str("kind", item.Kind).
			Msg("Batch item failed")
		return item
	}

	p.logger.Debug().
		Str("path", path).
		Dur("duration", item.Duration).
		Msg("Batch item completed")
	return item
}

// runTask calls task, recording a panic as the item's error.
func (p *Pool) runTask(ctx context.Context, path string, task Task) (output interface{}, err error) {
	defer common.CapturePanic(p.logger, path, &err)
	return task(ctx, path)
}

// record persists the run when history is configured. Failures are logged.
func (p *Pool) record(ctx context.Context, report *models.BatchReport) {
	if p.history == nil {
		return
	}

	run := &models.RunRecord{
		ID:         uuid.New().String(),
		Operation:  report.Operation,
		StartedAt:  report.StartedAt,
		FinishedAt: report.StartedAt.Add(report.Elapsed),
		Total:      len(report.Items),
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
	}
	for _, item := range report.Failures() {
		run.Failures = append(run.Failures, models.FailureRecord{
			Path:    item.Path,
			Kind:    item.Kind,
			Message: item.Error,
		})
	}

	if err := p.history.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		p.logger.Warn().Err(err).Str("operation", report.Operation).Msg("Failed to record batch run")
		return
	}
	report.RunID = run.ID
}
