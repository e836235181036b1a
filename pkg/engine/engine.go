// Package engine orchestrates one run of a workflow: it creates the
// execution record, walks the active steps in step_order, records one action
// log per attempt, and finalizes the execution's terminal status. Execution
// is fail-fast: the first handler failure aborts the remaining steps.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/action"
	"github.com/mealflow/mealflow/pkg/eventbus"
	"github.com/mealflow/mealflow/pkg/metrics"
	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/schedule"
	"github.com/mealflow/mealflow/pkg/store"
)

var (
	// ErrInactiveWorkflow rejects execution of a deactivated workflow
	// before any record is written.
	ErrInactiveWorkflow = errors.New("workflow is not active")

	// ErrNoActiveSteps marks an execution that failed because the workflow
	// had nothing to run. The failure is recorded on the execution record;
	// it is not a silent no-op.
	ErrNoActiveSteps = errors.New("workflow has no active steps")
)

// WorkflowStore is the definition/step read side the engine needs.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id uuid.UUID) (*model.WorkflowDefinition, error)
	ActiveSteps(ctx context.Context, workflowID uuid.UUID) ([]model.WorkflowStep, error)
}

// ExecutionStore persists execution records and their status transitions.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, execution *model.WorkflowExecution) error
	SetCurrentStep(ctx context.Context, executionID uuid.UUID, stepOrder int) error
	FinishExecution(ctx context.Context, executionID uuid.UUID, status model.ExecutionStatus, errorMessage string) error
}

// ActionLogStore appends per-step attempt records.
type ActionLogStore interface {
	AppendActionLog(ctx context.Context, log *model.WorkflowActionLog) error
	FinishActionLog(ctx context.Context, logID uuid.UUID, status model.ActionStatus, resultData model.JSONB, errorMessage string) error
}

// ScheduleStore reads and advances a workflow's schedule.
type ScheduleStore interface {
	GetSchedule(ctx context.Context, workflowID uuid.UUID) (*model.WorkflowSchedule, error)
	MarkRun(ctx context.Context, workflowID uuid.UUID, lastRun time.Time, nextRun *time.Time) error
}

type Engine struct {
	workflows  WorkflowStore
	executions ExecutionStore
	logs       ActionLogStore
	schedules  ScheduleStore
	registry   *action.Registry
	bus        *eventbus.Bus
	logger     *zap.Logger
	timeout    time.Duration
	now        func() time.Time
}

func New(
	workflows WorkflowStore,
	executions ExecutionStore,
	logs ActionLogStore,
	schedules ScheduleStore,
	registry *action.Registry,
	bus *eventbus.Bus,
	logger *zap.Logger,
	timeout time.Duration,
) *Engine {
	return &Engine{
		workflows:  workflows,
		executions: executions,
		logs:       logs,
		schedules:  schedules,
		registry:   registry,
		bus:        bus,
		logger:     logger,
		timeout:    timeout,
		now:        time.Now,
	}
}

// ExecuteWorkflow runs one execution of the workflow. The returned execution
// reflects the terminal state; a non-nil error accompanies a failed run.
// Missing and inactive workflows are rejected before any record is written.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID uuid.UUID) (*model.WorkflowExecution, error) {
	workflow, err := e.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	if !workflow.IsActive {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrInactiveWorkflow)
	}

	startedAt := e.now().UTC()
	execution := &model.WorkflowExecution{
		ID:         uuid.New(),
		WorkflowID: workflow.ID,
		Status:     model.ExecutionRunning,
		StartedAt:  startedAt,
	}
	if err := e.executions.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("create execution for workflow %s: %w", workflowID, err)
	}

	e.publish(ctx, execution, "")
	e.logger.Info("execution started",
		zap.String("workflow_id", workflow.ID.String()),
		zap.String("execution_id", execution.ID.String()))

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// Terminal statuses must reach the store even when the timeout fires or
	// the caller disconnects mid-run, otherwise the execution stays running
	// forever and blocks every later run of the workflow.
	detached := context.WithoutCancel(ctx)

	steps, err := e.workflows.ActiveSteps(ctx, workflow.ID)
	if err != nil {
		return execution, e.fail(detached, execution, fmt.Errorf("load steps: %w", err))
	}
	if len(steps) == 0 {
		return execution, e.fail(detached, execution, ErrNoActiveSteps)
	}

	for i := range steps {
		if err := e.runStep(ctx, detached, execution, &steps[i]); err != nil {
			return execution, e.fail(detached, execution, err)
		}
	}

	if err := e.executions.FinishExecution(detached, execution.ID, model.ExecutionCompleted, ""); err != nil {
		e.logger.Error("failed to finalize execution", zap.Error(err),
			zap.String("execution_id", execution.ID.String()))
		return execution, err
	}
	execution.Status = model.ExecutionCompleted
	completedAt := e.now().UTC()
	execution.CompletedAt = &completedAt

	metrics.ExecutionsTotal.WithLabelValues(string(model.ExecutionCompleted)).Inc()
	e.advanceSchedule(detached, workflow.ID, startedAt)
	e.publish(detached, execution, "")

	e.logger.Info("execution completed",
		zap.String("workflow_id", workflow.ID.String()),
		zap.String("execution_id", execution.ID.String()),
		zap.Int("steps", len(steps)))

	return execution, nil
}

// runStep records the attempt, invokes the handler, and settles the action
// log. Step N+1 never starts before this log reaches a terminal status. The
// settling writes go through detached so an expired ctx cannot leave the log
// stuck in running.
func (e *Engine) runStep(ctx, detached context.Context, execution *model.WorkflowExecution, step *model.WorkflowStep) error {
	if err := e.executions.SetCurrentStep(ctx, execution.ID, step.StepOrder); err != nil {
		return fmt.Errorf("advance to step %d: %w", step.StepOrder, err)
	}
	execution.CurrentStep = step.StepOrder

	logEntry := &model.WorkflowActionLog{
		ID:          uuid.New(),
		ExecutionID: execution.ID,
		StepID:      step.ID,
		ActionType:  step.StepType,
		Status:      model.ActionRunning,
		PerformedAt: e.now().UTC(),
	}
	if err := e.logs.AppendActionLog(ctx, logEntry); err != nil {
		return fmt.Errorf("record step %d attempt: %w", step.StepOrder, err)
	}

	start := e.now()
	result, err := e.registry.Execute(ctx, *step)
	metrics.StepDuration.WithLabelValues(string(step.StepType)).Observe(time.Since(start).Seconds())

	if err != nil {
		stepErr := fmt.Errorf("step %d (%s): %w", step.StepOrder, step.StepType, err)
		if logErr := e.logs.FinishActionLog(detached, logEntry.ID, model.ActionFailed, nil, stepErr.Error()); logErr != nil {
			e.logger.Error("failed to record step failure", zap.Error(logErr),
				zap.String("execution_id", execution.ID.String()))
		}
		return stepErr
	}

	return e.logs.FinishActionLog(detached, logEntry.ID, model.ActionSuccess, result, "")
}

// fail durably records the execution failure before anything else happens,
// then recomputes the schedule: next_run advances on failure too. Callers
// pass the detached context so recording survives timeout and cancellation.
func (e *Engine) fail(ctx context.Context, execution *model.WorkflowExecution, cause error) error {
	if err := e.executions.FinishExecution(ctx, execution.ID, model.ExecutionFailed, cause.Error()); err != nil {
		e.logger.Error("failed to record execution failure", zap.Error(err),
			zap.String("execution_id", execution.ID.String()))
	}
	execution.Status = model.ExecutionFailed
	execution.ErrorMessage = cause.Error()
	completedAt := e.now().UTC()
	execution.CompletedAt = &completedAt

	metrics.ExecutionsTotal.WithLabelValues(string(model.ExecutionFailed)).Inc()
	e.advanceSchedule(ctx, execution.WorkflowID, execution.StartedAt)
	e.publish(ctx, execution, cause.Error())

	e.logger.Warn("execution failed",
		zap.String("workflow_id", execution.WorkflowID.String()),
		zap.String("execution_id", execution.ID.String()),
		zap.Error(cause))

	return cause
}

// advanceSchedule stamps last_run and persists the recomputed next_run after
// a terminal status. Workflows without a schedule are untouched.
func (e *Engine) advanceSchedule(ctx context.Context, workflowID uuid.UUID, startedAt time.Time) {
	sched, err := e.schedules.GetSchedule(ctx, workflowID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		e.logger.Error("failed to load schedule", zap.Error(err),
			zap.String("workflow_id", workflowID.String()))
		return
	}

	nextRun, err := schedule.NextRun(sched.ScheduleType, sched.ScheduleConfig, e.now())
	if err != nil {
		e.logger.Error("failed to compute next run", zap.Error(err),
			zap.String("workflow_id", workflowID.String()))
		return
	}

	if err := e.schedules.MarkRun(ctx, workflowID, startedAt, nextRun); err != nil {
		e.logger.Error("failed to persist next run", zap.Error(err),
			zap.String("workflow_id", workflowID.String()))
	}
}

func (e *Engine) publish(ctx context.Context, execution *model.WorkflowExecution, message string) {
	if e.bus == nil {
		return
	}
	event, err := eventbus.NewEvent("execution_"+string(execution.Status), eventbus.ExecutionEvent{
		ExecutionID: execution.ID.String(),
		WorkflowID:  execution.WorkflowID.String(),
		Status:      string(execution.Status),
		Message:     message,
	})
	if err != nil {
		return
	}
	_ = e.bus.Publish(ctx, eventbus.ChannelExecution, event)
}
