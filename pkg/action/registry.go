// Package action dispatches workflow steps to their typed handlers. The
// registry only performs type-based lookup; all interpretation of the
// free-form config payloads happens inside the matching handler.
package action

import (
	"context"
	"errors"
	"fmt"

	"github.com/mealflow/mealflow/pkg/model"
)

// ErrUnknownStepType marks a step whose type has no registered handler.
// It is a configuration error and fails the execution.
var ErrUnknownStepType = errors.New("unknown step type")

// Handler executes one step kind. config is the step's payload for that
// kind; the returned JSONB is the handler-defined success result.
type Handler interface {
	Execute(ctx context.Context, step model.WorkflowStep, config model.JSONB) (model.JSONB, error)
}

type Registry struct {
	handlers map[model.StepType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.StepType]Handler)}
}

func (r *Registry) Register(stepType model.StepType, handler Handler) {
	r.handlers[stepType] = handler
}

// Execute looks up the step's handler and invokes it with the config payload
// that step kind reads: trigger_config for wait_until, condition_config for
// check_condition, action_config otherwise.
func (r *Registry) Execute(ctx context.Context, step model.WorkflowStep) (model.JSONB, error) {
	handler, ok := r.handlers[step.StepType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStepType, step.StepType)
	}
	return handler.Execute(ctx, step, configFor(step))
}

func configFor(step model.WorkflowStep) model.JSONB {
	switch step.StepType {
	case model.StepWaitUntil:
		return step.TriggerConfig
	case model.StepCheckCondition:
		return step.ConditionConfig
	default:
		return step.ActionConfig
	}
}
