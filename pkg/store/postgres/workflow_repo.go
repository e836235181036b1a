package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/store"
)

type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create persists a definition together with its steps and optional schedule
// in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *model.WorkflowDefinition, steps []model.WorkflowStep, schedule *model.WorkflowSchedule) error {
	if err := validateStepOrders(steps); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Steps", "Schedule", "Executions").Create(workflow).Error; err != nil {
			return err
		}

		for i := range steps {
			steps[i].WorkflowID = workflow.ID
		}
		if len(steps) > 0 {
			if err := tx.CreateInBatches(steps, 100).Error; err != nil {
				return err
			}
		}

		if schedule != nil {
			schedule.WorkflowID = workflow.ID
			if err := tx.Create(schedule).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id uuid.UUID, opts store.GetOptions) (*model.WorkflowDefinition, error) {
	query := r.db.WithContext(ctx)
	if opts.IncludeSteps {
		query = query.Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		})
	}
	if opts.IncludeSchedule {
		query = query.Preload("Schedule")
	}
	if opts.IncludeExecutions {
		query = query.Preload("Executions", func(db *gorm.DB) *gorm.DB {
			return db.Order("started_at DESC")
		})
	}

	var workflow model.WorkflowDefinition
	if err := query.First(&workflow, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &workflow, nil
}

func (r *WorkflowRepository) List(ctx context.Context, filter store.WorkflowFilter) ([]model.WorkflowDefinition, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.WorkflowDefinition{})

	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Type != "" {
		query = query.Where("workflow_type = ?", filter.Type)
	}
	if filter.CreatedBy != "" {
		query = query.Where("created_by = ?", filter.CreatedBy)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("name ILIKE ? OR description ILIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var workflows []model.WorkflowDefinition
	err := query.
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&workflows).Error

	return workflows, total, err
}

func (r *WorkflowRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*model.WorkflowDefinition, error) {
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&model.WorkflowDefinition{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}

	return r.GetByID(ctx, id, store.GetOptions{IncludeSteps: true, IncludeSchedule: true})
}

// Delete removes a workflow and everything hanging off it: steps, schedule,
// executions, and their action logs. Erasing the audit trail with the
// definition is deliberate.
func (r *WorkflowRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var workflow model.WorkflowDefinition
		if err := tx.First(&workflow, "id = ?", id).Error; err != nil {
			return translate(err)
		}

		if err := tx.Where("execution_id IN (?)",
			tx.Model(&model.WorkflowExecution{}).Select("id").Where("workflow_id = ?", id),
		).Delete(&model.WorkflowActionLog{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", id).Delete(&model.WorkflowExecution{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", id).Delete(&model.WorkflowSchedule{}).Error; err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", id).Delete(&model.WorkflowStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&workflow).Error
	})
}

// GetWorkflow satisfies the engine's workflow lookup.
func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id uuid.UUID) (*model.WorkflowDefinition, error) {
	return r.GetByID(ctx, id, store.GetOptions{})
}

// ActiveSteps returns the currently-active steps of a workflow ordered by
// step_order, which is the order the engine executes them in.
func (r *WorkflowRepository) ActiveSteps(ctx context.Context, workflowID uuid.UUID) ([]model.WorkflowStep, error) {
	var steps []model.WorkflowStep
	err := r.db.WithContext(ctx).
		Where("workflow_id = ? AND is_active = ?", workflowID, true).
		Order("step_order ASC").
		Find(&steps).Error
	return steps, err
}

// DueWorkflows returns active workflows whose schedule's next_run has
// elapsed. Workflows without a schedule are never due.
func (r *WorkflowRepository) DueWorkflows(ctx context.Context, now time.Time) ([]model.WorkflowDefinition, error) {
	var workflows []model.WorkflowDefinition
	err := r.db.WithContext(ctx).
		Joins("JOIN workflow_schedules ON workflow_schedules.workflow_id = workflow_definitions.id").
		Where("workflow_definitions.is_active = ?", true).
		Where("workflow_schedules.next_run IS NOT NULL AND workflow_schedules.next_run <= ?", now).
		Preload("Schedule").
		Find(&workflows).Error
	return workflows, err
}

func validateStepOrders(steps []model.WorkflowStep) error {
	seen := make(map[int]bool, len(steps))
	for _, step := range steps {
		if !step.IsActive {
			continue
		}
		if seen[step.StepOrder] {
			return fmt.Errorf("%w: step_order %d", store.ErrDuplicateStepOrder, step.StepOrder)
		}
		seen[step.StepOrder] = true
	}
	return nil
}
