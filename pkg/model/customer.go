package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Customer is the recipient side of the action boundary: the recipient
// resolver and the orders_missing check read these records.
type Customer struct {
	ID          uuid.UUID      `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name        string         `gorm:"not null"`
	Email       string         `gorm:"not null;uniqueIndex"`
	IsActive    bool           `gorm:"default:true;index"`
	GroupID     *uuid.UUID     `gorm:"type:uuid;index"`
	DietaryTags pq.StringArray `gorm:"type:text[]"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CustomerGroup struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name        string    `gorm:"not null;uniqueIndex"`
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderConfirmed OrderStatus = "confirmed"
	OrderDelivered OrderStatus = "delivered"
)

type Order struct {
	ID         uuid.UUID   `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CustomerID uuid.UUID   `gorm:"type:uuid;not null;index"`
	Status     OrderStatus `gorm:"type:varchar(50);default:'draft'"`
	TotalCents int         `gorm:"default:0"`
	Notes      string
	CreatedBy  string
	PlacedAt   time.Time `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InventoryItem backs the low_inventory condition check.
type InventoryItem struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name         string    `gorm:"not null;uniqueIndex"`
	Unit         string
	Quantity     int `gorm:"default:0"`
	ReorderLevel int `gorm:"default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
