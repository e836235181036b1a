// Package catering implements the outbound action boundary against the
// catering domain tables: recipient resolution, condition checks, and draft
// order creation.
package catering

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealflow/mealflow/pkg/action"
	"github.com/mealflow/mealflow/pkg/model"
)

const groupSpecPrefix = "customer_group:"

// RecipientDirectory resolves declarative recipient specs against the
// customer tables.
type RecipientDirectory struct {
	db            *gorm.DB
	testRecipient string
}

func NewRecipientDirectory(db *gorm.DB, testRecipient string) *RecipientDirectory {
	return &RecipientDirectory{db: db, testRecipient: testRecipient}
}

func (d *RecipientDirectory) Resolve(ctx context.Context, spec string) ([]action.Recipient, error) {
	switch {
	case spec == "test":
		return []action.Recipient{{ID: uuid.Nil, Name: "Test Recipient", Email: d.testRecipient}}, nil

	case spec == "all_active_customers":
		return d.query(ctx, d.db.WithContext(ctx).Where("is_active = ?", true))

	case strings.HasPrefix(spec, groupSpecPrefix):
		groupID, err := uuid.Parse(strings.TrimPrefix(spec, groupSpecPrefix))
		if err != nil {
			return nil, fmt.Errorf("invalid customer group id in spec %q: %w", spec, err)
		}
		return d.query(ctx, d.db.WithContext(ctx).Where("is_active = ? AND group_id = ?", true, groupID))

	default:
		return nil, fmt.Errorf("unknown recipient spec %q", spec)
	}
}

func (d *RecipientDirectory) query(_ context.Context, query *gorm.DB) ([]action.Recipient, error) {
	var customers []model.Customer
	if err := query.Order("name ASC").Find(&customers).Error; err != nil {
		return nil, err
	}

	recipients := make([]action.Recipient, 0, len(customers))
	for _, customer := range customers {
		recipients = append(recipients, action.Recipient{
			ID:    customer.ID,
			Name:  customer.Name,
			Email: customer.Email,
		})
	}
	return recipients, nil
}
