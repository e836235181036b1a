package postgres

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealflow/mealflow/pkg/model"
	"github.com/mealflow/mealflow/pkg/store"
)

func TestStepAfterUpdate(t *testing.T) {
	step := model.WorkflowStep{ID: uuid.New(), StepOrder: 1, IsActive: false}

	moved := stepAfterUpdate(step, map[string]interface{}{"step_order": 3, "is_active": true})
	assert.Equal(t, 3, moved.StepOrder)
	assert.True(t, moved.IsActive)

	untouched := stepAfterUpdate(step, map[string]interface{}{"action_config": model.JSONB{}})
	assert.Equal(t, 1, untouched.StepOrder)
	assert.False(t, untouched.IsActive)
}

func TestCheckOrderClashRejectsMoveOntoActiveOrder(t *testing.T) {
	first := model.WorkflowStep{ID: uuid.New(), StepOrder: 1, IsActive: true}
	second := model.WorkflowStep{ID: uuid.New(), StepOrder: 2, IsActive: true}
	siblings := []model.WorkflowStep{first, second}

	moved := second
	moved.StepOrder = 1

	err := checkOrderClash(siblings, moved)
	require.ErrorIs(t, err, store.ErrDuplicateStepOrder)
}

func TestCheckOrderClashRejectsReactivationOntoTakenOrder(t *testing.T) {
	active := model.WorkflowStep{ID: uuid.New(), StepOrder: 1, IsActive: true}
	dormant := model.WorkflowStep{ID: uuid.New(), StepOrder: 1, IsActive: false}
	siblings := []model.WorkflowStep{active, dormant}

	reactivated := dormant
	reactivated.IsActive = true

	err := checkOrderClash(siblings, reactivated)
	require.ErrorIs(t, err, store.ErrDuplicateStepOrder)
}

func TestCheckOrderClashAllowsInactiveAndSelf(t *testing.T) {
	first := model.WorkflowStep{ID: uuid.New(), StepOrder: 1, IsActive: true}
	inactive := model.WorkflowStep{ID: uuid.New(), StepOrder: 2, IsActive: false}
	siblings := []model.WorkflowStep{first, inactive}

	// Deactivating is always allowed, whatever the order.
	deactivated := first
	deactivated.IsActive = false
	assert.NoError(t, checkOrderClash(siblings, deactivated))

	// An update that keeps the step on its own order does not clash with
	// itself.
	assert.NoError(t, checkOrderClash(siblings, first))

	// Inactive orders are free to take.
	moved := first
	moved.StepOrder = 2
	assert.NoError(t, checkOrderClash(siblings, moved))
}
