package action

import (
	"context"

	"github.com/google/uuid"

	"github.com/mealflow/mealflow/pkg/model"
)

// Recipient is one resolved delivery target.
type Recipient struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Message is the content side of a bulk send: either a named template or raw
// subject/body.
type Message struct {
	Template string
	Subject  string
	Body     string
}

// Mailer dispatches a bulk send and reports how many recipients were
// actually sent to, alongside the first transport error if any.
type Mailer interface {
	Send(ctx context.Context, msg Message, recipients []Recipient) (int, error)
}

// RecipientResolver turns a declarative spec string (all_active_customers,
// customer_group:<id>, test, ...) into a concrete recipient set.
type RecipientResolver interface {
	Resolve(ctx context.Context, spec string) ([]Recipient, error)
}

// ConditionEvaluator runs one named domain check and returns whether it was
// met plus supporting figures.
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, check string, params model.JSONB) (bool, model.JSONB, error)
}

// OrderCreator is the extension point behind the create_order step.
type OrderCreator interface {
	CreateDraft(ctx context.Context, config model.JSONB) (uuid.UUID, error)
}
