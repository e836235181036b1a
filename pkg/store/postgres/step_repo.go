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

type StepRepository struct {
	db *gorm.DB
}

func NewStepRepository(db *gorm.DB) *StepRepository {
	return &StepRepository{db: db}
}

func (r *StepRepository) Create(ctx context.Context, step *model.WorkflowStep) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureWorkflowExists(tx, step.WorkflowID); err != nil {
			return err
		}
		if step.IsActive {
			var clash int64
			if err := tx.Model(&model.WorkflowStep{}).
				Where("workflow_id = ? AND step_order = ? AND is_active = ?", step.WorkflowID, step.StepOrder, true).
				Count(&clash).Error; err != nil {
				return err
			}
			if clash > 0 {
				return fmt.Errorf("%w: step_order %d", store.ErrDuplicateStepOrder, step.StepOrder)
			}
		}
		return tx.Create(step).Error
	})
}

func (r *StepRepository) List(ctx context.Context, workflowID uuid.UUID) ([]model.WorkflowStep, error) {
	var steps []model.WorkflowStep
	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("step_order ASC").
		Find(&steps).Error
	return steps, err
}

// Update applies a partial edit. Edits that move the step to an occupied
// active step_order, or reactivate it onto one, are refused the same way
// Create and Replace refuse them.
func (r *StepRepository) Update(ctx context.Context, workflowID, stepID uuid.UUID, updates map[string]interface{}) (*model.WorkflowStep, error) {
	updates["updated_at"] = time.Now()

	var updated model.WorkflowStep
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var siblings []model.WorkflowStep
		if err := tx.Where("workflow_id = ?", workflowID).Find(&siblings).Error; err != nil {
			return err
		}

		current, ok := findStep(siblings, stepID)
		if !ok {
			return store.ErrNotFound
		}
		if err := checkOrderClash(siblings, stepAfterUpdate(current, updates)); err != nil {
			return err
		}

		if err := tx.Model(&model.WorkflowStep{}).Where("id = ?", stepID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&updated, "id = ?", stepID).Error
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func findStep(steps []model.WorkflowStep, stepID uuid.UUID) (model.WorkflowStep, bool) {
	for _, step := range steps {
		if step.ID == stepID {
			return step, true
		}
	}
	return model.WorkflowStep{}, false
}

// stepAfterUpdate projects the order/active fields the step would hold once
// the update map is applied.
func stepAfterUpdate(step model.WorkflowStep, updates map[string]interface{}) model.WorkflowStep {
	if order, ok := updates["step_order"].(int); ok {
		step.StepOrder = order
	}
	if active, ok := updates["is_active"].(bool); ok {
		step.IsActive = active
	}
	return step
}

// checkOrderClash refuses a step that would share its step_order with
// another active step of the workflow.
func checkOrderClash(siblings []model.WorkflowStep, step model.WorkflowStep) error {
	if !step.IsActive {
		return nil
	}
	for _, other := range siblings {
		if other.ID == step.ID || !other.IsActive {
			continue
		}
		if other.StepOrder == step.StepOrder {
			return fmt.Errorf("%w: step_order %d", store.ErrDuplicateStepOrder, step.StepOrder)
		}
	}
	return nil
}

func (r *StepRepository) Delete(ctx context.Context, workflowID, stepID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND workflow_id = ?", stepID, workflowID).
		Delete(&model.WorkflowStep{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Replace swaps the full step list of a workflow: delete-then-insert within
// one transaction.
func (r *StepRepository) Replace(ctx context.Context, workflowID uuid.UUID, steps []model.WorkflowStep) error {
	if err := validateStepOrders(steps); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureWorkflowExists(tx, workflowID); err != nil {
			return err
		}
		if err := tx.Where("workflow_id = ?", workflowID).Delete(&model.WorkflowStep{}).Error; err != nil {
			return err
		}
		for i := range steps {
			steps[i].WorkflowID = workflowID
		}
		if len(steps) == 0 {
			return nil
		}
		return tx.CreateInBatches(steps, 100).Error
	})
}

func ensureWorkflowExists(tx *gorm.DB, workflowID uuid.UUID) error {
	var count int64
	if err := tx.Model(&model.WorkflowDefinition{}).Where("id = ?", workflowID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return nil
}
