package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/store"
)

type ExecutionRepository struct {
	db *gorm.DB
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// CreateExecution inserts a new running execution. The insert is refused
// when the workflow already has an execution in the running state, so two
// poll cycles can never start the same workflow twice.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *model.WorkflowExecution) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var running int64
		if err := tx.Model(&model.WorkflowExecution{}).
			Where("workflow_id = ? AND status = ?", execution.WorkflowID, model.ExecutionRunning).
			Count(&running).Error; err != nil {
			return err
		}
		if running > 0 {
			return store.ErrAlreadyRunning
		}
		return tx.Omit("ActionLogs").Create(execution).Error
	})
}

func (r *ExecutionRepository) SetCurrentStep(ctx context.Context, executionID uuid.UUID, stepOrder int) error {
	return r.db.WithContext(ctx).Model(&model.WorkflowExecution{}).
		Where("id = ?", executionID).
		Updates(map[string]interface{}{
			"current_step": stepOrder,
			"updated_at":   time.Now(),
		}).Error
}

// FinishExecution performs the single running -> terminal transition.
func (r *ExecutionRepository) FinishExecution(ctx context.Context, executionID uuid.UUID, status model.ExecutionStatus, errorMessage string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": &now,
		"updated_at":   now,
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	result := r.db.WithContext(ctx).Model(&model.WorkflowExecution{}).
		Where("id = ? AND status = ?", executionID, model.ExecutionRunning).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.WorkflowExecution, error) {
	var execution model.WorkflowExecution
	err := r.db.WithContext(ctx).
		Preload("ActionLogs", func(db *gorm.DB) *gorm.DB {
			return db.Order("performed_at ASC")
		}).
		First(&execution, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &execution, nil
}

func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, page store.Page) ([]model.WorkflowExecution, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.WorkflowExecution{}).Where("workflow_id = ?", workflowID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var executions []model.WorkflowExecution
	err := query.
		Order("started_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&executions).Error

	return executions, total, err
}
