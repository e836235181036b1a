package action

import (
	"context"
	"fmt"
	"time"

	"github.com/mealflow/mealflow/pkg/metrics"
	"github.com/mealflow/mealflow/pkg/model"
)

// SendEmailHandler resolves the recipient set declared in action_config and
// dispatches one bulk send. An empty recipient set is a success with
// sent_count 0, not a failure.
type SendEmailHandler struct {
	resolver RecipientResolver
	mailer   Mailer
}

func NewSendEmailHandler(resolver RecipientResolver, mailer Mailer) *SendEmailHandler {
	return &SendEmailHandler{resolver: resolver, mailer: mailer}
}

func (h *SendEmailHandler) Execute(ctx context.Context, _ model.WorkflowStep, config model.JSONB) (model.JSONB, error) {
	spec, ok := config.String("recipients")
	if !ok {
		return nil, fmt.Errorf("send_email requires a recipients spec")
	}

	msg := Message{}
	msg.Template, _ = config.String("template")
	msg.Subject, _ = config.String("subject")
	msg.Body, _ = config.String("body")
	if msg.Template == "" && msg.Subject == "" {
		return nil, fmt.Errorf("send_email requires a template or a subject")
	}

	recipients, err := h.resolver.Resolve(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("resolve recipients %q: %w", spec, err)
	}

	sent := 0
	if len(recipients) > 0 {
		sent, err = h.mailer.Send(ctx, msg, recipients)
		if err != nil {
			return nil, fmt.Errorf("send to %q: %w", spec, err)
		}
	}

	metrics.EmailsSent.Add(float64(sent))

	return model.JSONB{
		"recipients":       spec,
		"recipients_count": len(recipients),
		"sent_count":       sent,
	}, nil
}

// CheckConditionHandler evaluates one named domain check. The outcome is
// advisory: condition_met false never halts the workflow.
type CheckConditionHandler struct {
	evaluator ConditionEvaluator
}

func NewCheckConditionHandler(evaluator ConditionEvaluator) *CheckConditionHandler {
	return &CheckConditionHandler{evaluator: evaluator}
}

func (h *CheckConditionHandler) Execute(ctx context.Context, _ model.WorkflowStep, config model.JSONB) (model.JSONB, error) {
	check, ok := config.String("check")
	if !ok {
		return nil, fmt.Errorf("check_condition requires a check name")
	}

	met, figures, err := h.evaluator.Evaluate(ctx, check, config)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", check, err)
	}

	result := model.JSONB{
		"check":         check,
		"condition_met": met,
	}
	for key, value := range figures {
		result[key] = value
	}
	return result, nil
}

// WaitUntilHandler records the declared wait condition and returns
// immediately. It does not suspend the execution; deferred continuation is
// not implemented.
type WaitUntilHandler struct{}

func NewWaitUntilHandler() *WaitUntilHandler {
	return &WaitUntilHandler{}
}

func (h *WaitUntilHandler) Execute(_ context.Context, _ model.WorkflowStep, config model.JSONB) (model.JSONB, error) {
	waitType, ok := config.String("wait_type")
	if !ok {
		return nil, fmt.Errorf("wait_until requires a wait_type")
	}

	result := model.JSONB{
		"wait_type": waitType,
		"deferred":  false,
	}

	switch waitType {
	case "duration":
		raw, ok := config.String("duration")
		if !ok {
			return nil, fmt.Errorf("wait_type duration requires a duration")
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("wait duration %q: %w", raw, err)
		}
		result["duration"] = d.String()
	case "until":
		raw, ok := config.String("until")
		if !ok {
			return nil, fmt.Errorf("wait_type until requires an until timestamp")
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("wait until %q: %w", raw, err)
		}
		result["until"] = at.UTC().Format(time.RFC3339)
	default:
		return nil, fmt.Errorf("unknown wait_type %q", waitType)
	}

	return result, nil
}

// CreateOrderHandler delegates to the order creator collaborator. It is an
// extension point, not a complete ordering flow.
type CreateOrderHandler struct {
	creator OrderCreator
}

func NewCreateOrderHandler(creator OrderCreator) *CreateOrderHandler {
	return &CreateOrderHandler{creator: creator}
}

func (h *CreateOrderHandler) Execute(ctx context.Context, _ model.WorkflowStep, config model.JSONB) (model.JSONB, error) {
	orderID, err := h.creator.CreateDraft(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return model.JSONB{
		"order_id": orderID.String(),
		"draft":    true,
	}, nil
}
