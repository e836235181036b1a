package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/store"
)

type ActionLogRepository struct {
	db *gorm.DB
}

func NewActionLogRepository(db *gorm.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// AppendActionLog records the start of one step attempt.
func (r *ActionLogRepository) AppendActionLog(ctx context.Context, log *model.WorkflowActionLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FinishActionLog performs the single running -> terminal transition of an
// action log entry. Entries already terminal are left untouched.
func (r *ActionLogRepository) FinishActionLog(ctx context.Context, logID uuid.UUID, status model.ActionStatus, resultData model.JSONB, errorMessage string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if resultData != nil {
		updates["result_data"] = resultData
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	result := r.db.WithContext(ctx).Model(&model.WorkflowActionLog{}).
		Where("id = ? AND status = ?", logID, model.ActionRunning).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ActionLogRepository) ListByExecution(ctx context.Context, executionID uuid.UUID) ([]model.WorkflowActionLog, error) {
	var logs []model.WorkflowActionLog
	err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("performed_at ASC").
		Find(&logs).Error
	return logs, err
}
