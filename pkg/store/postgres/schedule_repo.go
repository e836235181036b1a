package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/store"
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Upsert creates or replaces the single schedule of a workflow.
func (r *ScheduleRepository) Upsert(ctx context.Context, schedule *model.WorkflowSchedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureWorkflowExists(tx, schedule.WorkflowID); err != nil {
			return err
		}

		var existing model.WorkflowSchedule
		err := tx.First(&existing, "workflow_id = ?", schedule.WorkflowID).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(schedule).Error
		}
		if err != nil {
			return err
		}

		schedule.ID = existing.ID
		schedule.CreatedAt = existing.CreatedAt
		return tx.Save(schedule).Error
	})
}

func (r *ScheduleRepository) GetSchedule(ctx context.Context, workflowID uuid.UUID) (*model.WorkflowSchedule, error) {
	var schedule model.WorkflowSchedule
	if err := r.db.WithContext(ctx).First(&schedule, "workflow_id = ?", workflowID).Error; err != nil {
		return nil, translate(err)
	}
	return &schedule, nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, workflowID uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("workflow_id = ?", workflowID).Delete(&model.WorkflowSchedule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// MarkRun stamps last_run and the recomputed next_run after an execution
// reaches a terminal status. A nil nextRun parks the schedule (never due).
func (r *ScheduleRepository) MarkRun(ctx context.Context, workflowID uuid.UUID, lastRun time.Time, nextRun *time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.WorkflowSchedule{}).
		Where("workflow_id = ?", workflowID).
		Updates(map[string]interface{}{
			"last_run":   lastRun,
			"next_run":   nextRun,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
