package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/formgate/formgate/internal/order/domain"
	"gorm.io/gorm"
)

// Fulfillment is the derived record of one completed payment's downstream
// effect. The unique index on order_id backs the exactly-once guarantee
// alongside the order's is_fulfilled flag.
type Fulfillment struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID   snowflake.ID `json:"order_id" gorm:"not null;uniqueIndex"`
	Reference string       `json:"reference" gorm:"type:text;not null"`
	FormSlug  string       `json:"form_slug" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Fulfillment) TableName() string { return "fulfillments" }

type Repository interface {
	// Insert is a no-op when the order already has a fulfillment. Returns true
	// when this caller created the record.
	Insert(ctx context.Context, db *gorm.DB, fulfillment *Fulfillment) (bool, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Fulfillment, error)
}

type Service interface {
	// Record writes the fulfillment row for a completed order. Must run inside
	// the same transaction that flips the order's is_fulfilled flag.
	Record(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) (*Fulfillment, error)
	// NotifyCompleted and NotifyFailed send customer and admin mail. Called
	// after the enclosing transaction commits; delivery failures are logged,
	// never propagated.
	NotifyCompleted(ctx context.Context, order *orderdomain.Order, fulfillment *Fulfillment)
	NotifyFailed(ctx context.Context, order *orderdomain.Order, reason string)
}
