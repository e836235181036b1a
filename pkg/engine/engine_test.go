package engine

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mealflow/mealflow/pkg/action"
	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/store"
)

// fakeStore is an in-memory implementation of the four store seams. Every
// method refuses an expired context the way gorm's WithContext does.
type fakeStore struct {
	workflows  map[uuid.UUID]*model.WorkflowDefinition
	steps      map[uuid.UUID][]model.WorkflowStep
	executions map[uuid.UUID]*model.WorkflowExecution
	logs       []*model.WorkflowActionLog
	schedules  map[uuid.UUID]*model.WorkflowSchedule
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workflows:  make(map[uuid.UUID]*model.WorkflowDefinition),
		steps:      make(map[uuid.UUID][]model.WorkflowStep),
		executions: make(map[uuid.UUID]*model.WorkflowExecution),
		schedules:  make(map[uuid.UUID]*model.WorkflowSchedule),
	}
}

func (f *fakeStore) GetWorkflow(ctx context.Context, id uuid.UUID) (*model.WorkflowDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	workflow, ok := f.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return workflow, nil
}

// ActiveSteps mimics the repository's ordering guarantee over deliberately
// unordered storage.
func (f *fakeStore) ActiveSteps(ctx context.Context, workflowID uuid.UUID) ([]model.WorkflowStep, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var active []model.WorkflowStep
	for _, step := range f.steps[workflowID] {
		if step.IsActive {
			active = append(active, step)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StepOrder < active[j].StepOrder })
	return active, nil
}

func (f *fakeStore) CreateExecution(ctx context.Context, execution *model.WorkflowExecution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, existing := range f.executions {
		if existing.WorkflowID == execution.WorkflowID && existing.Status == model.ExecutionRunning {
			return store.ErrAlreadyRunning
		}
	}
	copied := *execution
	f.executions[execution.ID] = &copied
	return nil
}

func (f *fakeStore) SetCurrentStep(ctx context.Context, executionID uuid.UUID, stepOrder int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.executions[executionID].CurrentStep = stepOrder
	return nil
}

func (f *fakeStore) FinishExecution(ctx context.Context, executionID uuid.UUID, status model.ExecutionStatus, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	execution, ok := f.executions[executionID]
	if !ok || execution.Status != model.ExecutionRunning {
		return store.ErrNotFound
	}
	execution.Status = status
	execution.ErrorMessage = errorMessage
	now := time.Now()
	execution.CompletedAt = &now
	return nil
}

func (f *fakeStore) AppendActionLog(ctx context.Context, log *model.WorkflowActionLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := *log
	f.logs = append(f.logs, &copied)
	return nil
}

func (f *fakeStore) FinishActionLog(ctx context.Context, logID uuid.UUID, status model.ActionStatus, resultData model.JSONB, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, log := range f.logs {
		if log.ID == logID && log.Status == model.ActionRunning {
			log.Status = status
			log.ResultData = resultData
			log.ErrorMessage = errorMessage
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) GetSchedule(ctx context.Context, workflowID uuid.UUID) (*model.WorkflowSchedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	schedule, ok := f.schedules[workflowID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return schedule, nil
}

func (f *fakeStore) MarkRun(ctx context.Context, workflowID uuid.UUID, lastRun time.Time, nextRun *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	schedule, ok := f.schedules[workflowID]
	if !ok {
		return store.ErrNotFound
	}
	schedule.LastRun = &lastRun
	schedule.NextRun = nextRun
	return nil
}

// recordingHandler is a scripted action.Handler.
type recordingHandler struct {
	result model.JSONB
	err    error
	calls  int
}

func (h *recordingHandler) Execute(_ context.Context, _ model.WorkflowStep, _ model.JSONB) (model.JSONB, error) {
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	return h.result, nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func seedWorkflow(f *fakeStore, active bool, steps ...model.WorkflowStep) *model.WorkflowDefinition {
	workflow := &model.WorkflowDefinition{ID: uuid.New(), Name: "reorder reminder", IsActive: active}
	f.workflows[workflow.ID] = workflow
	f.steps[workflow.ID] = steps
	return workflow
}

func newTestEngine(f *fakeStore, registry *action.Registry) *Engine {
	return New(f, f, f, f, registry, nil, zap.NewNop(), 0)
}

func TestExecuteWorkflowHappyPath(t *testing.T) {
	f := newFakeStore()
	now := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)

	mailHandler := &recordingHandler{result: model.JSONB{"sent_count": 12, "recipients_count": 12}}
	condHandler := &recordingHandler{result: model.JSONB{"condition_met": false}}

	registry := action.NewRegistry()
	registry.Register(model.StepSendEmail, mailHandler)
	registry.Register(model.StepCheckCondition, condHandler)

	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepSendEmail, IsActive: true},
		model.WorkflowStep{ID: uuid.New(), StepOrder: 2, StepType: model.StepCheckCondition, IsActive: true},
	)
	f.schedules[workflow.ID] = &model.WorkflowSchedule{
		WorkflowID:     workflow.ID,
		ScheduleType:   model.ScheduleDaily,
		ScheduleConfig: model.JSONB{"time": "09:00"},
	}

	eng := newTestEngine(f, registry)
	eng.now = fixedClock(now)

	execution, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCompleted, execution.Status)
	assert.Equal(t, 2, execution.CurrentStep)

	require.Len(t, f.logs, 2)
	assert.Equal(t, model.ActionSuccess, f.logs[0].Status)
	assert.Equal(t, model.StepSendEmail, f.logs[0].ActionType)
	assert.Equal(t, model.ActionSuccess, f.logs[1].Status)
	assert.Equal(t, model.StepCheckCondition, f.logs[1].ActionType)

	schedule := f.schedules[workflow.ID]
	require.NotNil(t, schedule.LastRun)
	require.NotNil(t, schedule.NextRun)
	assert.Equal(t, now, *schedule.LastRun)
	assert.Equal(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), *schedule.NextRun)
	assert.True(t, schedule.NextRun.After(*schedule.LastRun))
}

func TestExecuteWorkflowFailFast(t *testing.T) {
	f := newFakeStore()
	now := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)

	mailHandler := &recordingHandler{err: errors.New("smtp connection refused")}
	condHandler := &recordingHandler{result: model.JSONB{"condition_met": true}}

	registry := action.NewRegistry()
	registry.Register(model.StepSendEmail, mailHandler)
	registry.Register(model.StepCheckCondition, condHandler)

	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepSendEmail, IsActive: true},
		model.WorkflowStep{ID: uuid.New(), StepOrder: 2, StepType: model.StepCheckCondition, IsActive: true},
	)
	f.schedules[workflow.ID] = &model.WorkflowSchedule{
		WorkflowID:     workflow.ID,
		ScheduleType:   model.ScheduleDaily,
		ScheduleConfig: model.JSONB{"time": "09:00"},
	}

	eng := newTestEngine(f, registry)
	eng.now = fixedClock(now)

	execution, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.Error(t, err)
	assert.Equal(t, model.ExecutionFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "smtp connection refused")

	// Exactly one log: step 2 never attempted.
	require.Len(t, f.logs, 1)
	assert.Equal(t, model.ActionFailed, f.logs[0].Status)
	assert.Contains(t, f.logs[0].ErrorMessage, "smtp connection refused")
	assert.Equal(t, 0, condHandler.calls)

	// next_run still recomputed on failure.
	schedule := f.schedules[workflow.ID]
	require.NotNil(t, schedule.NextRun)
	assert.Equal(t, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), *schedule.NextRun)
}

func TestExecuteWorkflowStepOrdering(t *testing.T) {
	f := newFakeStore()

	var seen []model.StepType
	handler := func(result model.JSONB) action.Handler {
		return handlerFunc(func(_ context.Context, step model.WorkflowStep, _ model.JSONB) (model.JSONB, error) {
			seen = append(seen, step.StepType)
			return result, nil
		})
	}

	registry := action.NewRegistry()
	registry.Register(model.StepSendEmail, handler(model.JSONB{}))
	registry.Register(model.StepWaitUntil, handler(model.JSONB{}))
	registry.Register(model.StepCheckCondition, handler(model.JSONB{}))

	// Stored out of order, with an inactive step in the middle.
	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 3, StepType: model.StepCheckCondition, IsActive: true},
		model.WorkflowStep{ID: uuid.New(), StepOrder: 2, StepType: model.StepCreateOrder, IsActive: false},
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepSendEmail, IsActive: true},
		model.WorkflowStep{ID: uuid.New(), StepOrder: 4, StepType: model.StepWaitUntil, IsActive: true},
	)

	eng := newTestEngine(f, registry)

	execution, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCompleted, execution.Status)
	assert.Equal(t, []model.StepType{model.StepSendEmail, model.StepCheckCondition, model.StepWaitUntil}, seen)
	assert.Len(t, f.logs, 3)
}

func TestExecuteWorkflowNoActiveSteps(t *testing.T) {
	f := newFakeStore()
	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepSendEmail, IsActive: false},
	)

	eng := newTestEngine(f, action.NewRegistry())

	execution, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.ErrorIs(t, err, ErrNoActiveSteps)
	require.NotNil(t, execution)
	assert.Equal(t, model.ExecutionFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "no active steps")
	assert.Empty(t, f.logs)
}

func TestExecuteWorkflowInactive(t *testing.T) {
	f := newFakeStore()
	workflow := seedWorkflow(f, false,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepSendEmail, IsActive: true},
	)

	eng := newTestEngine(f, action.NewRegistry())

	execution, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.ErrorIs(t, err, ErrInactiveWorkflow)
	assert.Nil(t, execution)
	assert.Empty(t, f.executions)
}

func TestExecuteWorkflowNotFound(t *testing.T) {
	eng := newTestEngine(newFakeStore(), action.NewRegistry())

	_, err := eng.ExecuteWorkflow(context.Background(), uuid.New())
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestExecuteWorkflowUnknownStepType(t *testing.T) {
	f := newFakeStore()
	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepType("launch_rocket"), IsActive: true},
	)

	eng := newTestEngine(f, action.NewRegistry())

	execution, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.ErrorIs(t, err, action.ErrUnknownStepType)
	assert.Equal(t, model.ExecutionFailed, execution.Status)
	require.Len(t, f.logs, 1)
	assert.Equal(t, model.ActionFailed, f.logs[0].Status)
}

func TestExecuteWorkflowAlreadyRunning(t *testing.T) {
	f := newFakeStore()
	registry := action.NewRegistry()
	registry.Register(model.StepSendEmail, &recordingHandler{result: model.JSONB{}})

	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepSendEmail, IsActive: true},
	)
	f.executions[uuid.New()] = &model.WorkflowExecution{
		ID:         uuid.New(),
		WorkflowID: workflow.ID,
		Status:     model.ExecutionRunning,
	}

	eng := newTestEngine(f, registry)

	_, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.ErrorIs(t, err, store.ErrAlreadyRunning)
}

func TestExecuteWorkflowTimeoutRecordsFailure(t *testing.T) {
	f := newFakeStore()

	registry := action.NewRegistry()
	registry.Register(model.StepSendEmail, handlerFunc(func(ctx context.Context, _ model.WorkflowStep, _ model.JSONB) (model.JSONB, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepSendEmail, IsActive: true},
	)
	f.schedules[workflow.ID] = &model.WorkflowSchedule{
		WorkflowID:     workflow.ID,
		ScheduleType:   model.ScheduleDaily,
		ScheduleConfig: model.JSONB{"time": "09:00"},
	}

	eng := New(f, f, f, f, registry, nil, zap.NewNop(), 10*time.Millisecond)

	execution, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.Error(t, err)
	require.NotNil(t, execution)

	// The failure is durably recorded despite the expired context.
	stored := f.executions[execution.ID]
	require.NotNil(t, stored)
	assert.Equal(t, model.ExecutionFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, context.DeadlineExceeded.Error())

	require.Len(t, f.logs, 1)
	assert.Equal(t, model.ActionFailed, f.logs[0].Status)

	require.NotNil(t, f.schedules[workflow.ID].NextRun)

	// No running record is left behind to block the next run.
	err = f.CreateExecution(context.Background(), &model.WorkflowExecution{
		ID:         uuid.New(),
		WorkflowID: workflow.ID,
		Status:     model.ExecutionRunning,
	})
	require.NoError(t, err)
}

func TestExecuteWorkflowCallerCancellationRecordsFailure(t *testing.T) {
	f := newFakeStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := action.NewRegistry()
	registry.Register(model.StepSendEmail, handlerFunc(func(hctx context.Context, _ model.WorkflowStep, _ model.JSONB) (model.JSONB, error) {
		cancel()
		return nil, hctx.Err()
	}))

	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepSendEmail, IsActive: true},
	)

	eng := newTestEngine(f, registry)

	execution, err := eng.ExecuteWorkflow(ctx, workflow.ID)
	require.Error(t, err)
	require.NotNil(t, execution)

	stored := f.executions[execution.ID]
	require.NotNil(t, stored)
	assert.Equal(t, model.ExecutionFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, context.Canceled.Error())

	require.Len(t, f.logs, 1)
	assert.Equal(t, model.ActionFailed, f.logs[0].Status)
}

func TestExecuteWorkflowWithoutScheduleLeavesNoSchedule(t *testing.T) {
	f := newFakeStore()
	registry := action.NewRegistry()
	registry.Register(model.StepWaitUntil, &recordingHandler{result: model.JSONB{"deferred": false}})

	workflow := seedWorkflow(f, true,
		model.WorkflowStep{ID: uuid.New(), StepOrder: 1, StepType: model.StepWaitUntil, IsActive: true},
	)

	eng := newTestEngine(f, registry)

	execution, err := eng.ExecuteWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCompleted, execution.Status)
	assert.Empty(t, f.schedules)
}

// handlerFunc adapts a function to action.Handler.
type handlerFunc func(ctx context.Context, step model.WorkflowStep, config model.JSONB) (model.JSONB, error)

func (fn handlerFunc) Execute(ctx context.Context, step model.WorkflowStep, config model.JSONB) (model.JSONB, error) {
	return fn(ctx, step, config)
}
