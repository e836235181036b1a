package catering

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mealflow/mealflow/pkg/model"
)

const defaultOrdersMissingDays = 30

// ConditionChecker evaluates the named domain checks behind check_condition
// steps.
type ConditionChecker struct {
	db *gorm.DB
}

func NewConditionChecker(db *gorm.DB) *ConditionChecker {
	return &ConditionChecker{db: db}
}

func (c *ConditionChecker) Evaluate(ctx context.Context, check string, params model.JSONB) (bool, model.JSONB, error) {
	switch check {
	case "orders_missing":
		return c.ordersMissing(ctx, params)
	case "low_inventory":
		return c.lowInventory(ctx)
	default:
		return false, nil, fmt.Errorf("unknown condition check %q", check)
	}
}

// ordersMissing reports whether any active customer has placed no order in
// the last N days.
func (c *ConditionChecker) ordersMissing(ctx context.Context, params model.JSONB) (bool, model.JSONB, error) {
	days, ok := params.Int("days")
	if !ok || days <= 0 {
		days = defaultOrdersMissingDays
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	var count int64
	err := c.db.WithContext(ctx).Model(&model.Customer{}).
		Where("is_active = ?", true).
		Where("NOT EXISTS (SELECT 1 FROM orders WHERE orders.customer_id = customers.id AND orders.placed_at >= ?)", cutoff).
		Count(&count).Error
	if err != nil {
		return false, nil, err
	}

	figures := model.JSONB{
		"days":                     days,
		"customers_without_orders": count,
	}
	return count > 0, figures, nil
}

// lowInventory reports whether any inventory item sits at or below its
// reorder level.
func (c *ConditionChecker) lowInventory(ctx context.Context) (bool, model.JSONB, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&model.InventoryItem{}).
		Where("quantity <= reorder_level").
		Count(&count).Error
	if err != nil {
		return false, nil, err
	}

	figures := model.JSONB{
		"items_below_reorder": count,
	}
	return count > 0, figures, nil
}
