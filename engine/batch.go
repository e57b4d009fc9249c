package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp/payroll-engine/deductions"
	"github.com/warp/payroll-engine/formula"
)

// DefaultWorkers bounds a batch when no worker count is configured.
const DefaultWorkers = 8

// EmployeeResult is one employee's outcome in a batch run.
type EmployeeResult struct {
	EmployeeID deductions.EmployeeID
	Breakdown  *Breakdown
	Err        error
}

// RunResult collects a whole payroll run. Results keep request order.
type RunResult struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Results     []EmployeeResult
	Failed      int
	Degraded    int
	Resolutions int // distinct formula resolutions cached by the run
}

// BatchRunner computes many employees concurrently. Every employee is
// isolated: an error or panic for one never stops the others.
type BatchRunner struct {
	Engine  *Engine
	Workers int
	Logger  *slog.Logger
}

func NewBatchRunner(e *Engine, workers int, logger *slog.Logger) *BatchRunner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchRunner{Engine: e, Workers: workers, Logger: logger}
}

// Run computes every request. The run shares one CachingResolver so each
// (type, category, date) is resolved once.
func (b *BatchRunner) Run(ctx context.Context, reqs []Request) *RunResult {
	cache := formula.NewCachingResolver(b.Engine.resolver)
	eng := b.Engine.WithResolver(cache)

	run := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Results:   make([]EmployeeResult, len(reqs)),
	}
	logger := b.Logger.With("run_id", run.RunID)
	logger.InfoContext(ctx, "payroll run started", "employees", len(reqs), "workers", b.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Workers)

	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			run.Results[i] = b.compute(gctx, eng, req)
			return nil
		})
	}
	_ = g.Wait() // tasks never return errors

	for _, r := range run.Results {
		switch {
		case r.Err != nil:
			run.Failed++
		case r.Breakdown != nil && r.Breakdown.Degraded:
			run.Degraded++
		}
	}
	run.Resolutions = cache.Len()
	run.FinishedAt = time.Now().UTC()

	logger.InfoContext(ctx, "payroll run finished",
		"employees", len(reqs),
		"failed", run.Failed,
		"degraded", run.Degraded,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return run
}

func (b *BatchRunner) compute(ctx context.Context, eng *Engine, req Request) (res EmployeeResult) {
	res.EmployeeID = req.EmployeeID
	defer func() {
		if p := recover(); p != nil {
			b.Logger.ErrorContext(ctx, "employee computation panicked", "employee_id", req.EmployeeID, "panic", p)
			res.Breakdown = nil
			res.Err = fmt.Errorf("employee %s: panic: %v", req.EmployeeID, p)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	res.Breakdown, res.Err = eng.ComputeDeductions(ctx, req)
	return res
}
