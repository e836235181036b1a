// Package poller periodically finds workflows whose schedule has elapsed and
// hands each to the execution engine. It assumes a single active poller
// process; the running-execution guard in the store covers a double start.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/metrics"
	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/store"
)

// DueStore lists active workflows whose schedule's next_run has elapsed.
type DueStore interface {
	DueWorkflows(ctx context.Context, now time.Time) ([]model.WorkflowDefinition, error)
}

// Runner is the execution engine seam.
type Runner interface {
	ExecuteWorkflow(ctx context.Context, workflowID uuid.UUID) (*model.WorkflowExecution, error)
}

type Poller struct {
	workflows DueStore
	engine    Runner
	logger    *zap.Logger
	interval  time.Duration
	now       func() time.Time
}

func New(workflows DueStore, engine Runner, logger *zap.Logger, interval time.Duration) *Poller {
	return &Poller{
		workflows: workflows,
		engine:    engine,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx, p.now())
		}
	}
}

// RunOnce executes every due workflow. A failure in one workflow never
// prevents the remaining due workflows in the same cycle from running.
func (p *Poller) RunOnce(ctx context.Context, now time.Time) {
	due, err := p.workflows.DueWorkflows(ctx, now)
	if err != nil {
		p.logger.Error("failed to load due workflows", zap.Error(err))
		return
	}

	metrics.DueWorkflows.Set(float64(len(due)))
	if len(due) == 0 {
		return
	}

	p.logger.Info("poll cycle", zap.Int("due", len(due)))

	for _, workflow := range due {
		_, err := p.engine.ExecuteWorkflow(ctx, workflow.ID)
		switch {
		case errors.Is(err, store.ErrAlreadyRunning):
			p.logger.Warn("skipping workflow with a run in flight",
				zap.String("workflow_id", workflow.ID.String()))
		case err != nil:
			// Already recorded on the execution; just keep the loop going.
			p.logger.Error("workflow execution failed",
				zap.String("workflow_id", workflow.ID.String()),
				zap.Error(err))
		}
	}
}
