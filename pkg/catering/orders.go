package catering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mealflow/mealflow/pkg/model"
)

// OrderService creates draft orders on behalf of create_order steps.
type OrderService struct {
	db *gorm.DB
}

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

func (s *OrderService) CreateDraft(ctx context.Context, config model.JSONB) (uuid.UUID, error) {
	rawCustomer, ok := config.String("customer_id")
	if !ok {
		return uuid.Nil, fmt.Errorf("create_order requires a customer_id")
	}
	customerID, err := uuid.Parse(rawCustomer)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid customer_id %q: %w", rawCustomer, err)
	}

	var customer model.Customer
	if err := s.db.WithContext(ctx).First(&customer, "id = ?", customerID).Error; err != nil {
		return uuid.Nil, fmt.Errorf("customer %s: %w", customerID, err)
	}

	notes, _ := config.String("notes")
	total, _ := config.Int("total_cents")

	order := model.Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     model.OrderDraft,
		TotalCents: total,
		Notes:      notes,
		CreatedBy:  "workflow",
		PlacedAt:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return uuid.Nil, err
	}
	return order.ID, nil
}
