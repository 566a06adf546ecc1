package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Entry records one applied payment event. Append-only; the unique index on
// event_id is what makes register-or-skip atomic under racing delivery paths.
type Entry struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	EventID      string       `json:"event_id" gorm:"type:text;not null;uniqueIndex"`
	OrderID      snowflake.ID `json:"order_id" gorm:"not null;index"`
	Source       string       `json:"source" gorm:"type:text;not null"`
	RegisteredAt time.Time    `json:"registered_at" gorm:"not null"`
}

func (Entry) TableName() string { return "payment_event_ledger" }

type Repository interface {
	// Register inserts the event id if it is not present. Returns true when
	// this caller won the registration, false when the id was already there.
	// Must be called with the same db/tx handle as the order mutation so both
	// commit or roll back together.
	Register(ctx context.Context, db *gorm.DB, entry *Entry) (bool, error)
	IsRegistered(ctx context.Context, db *gorm.DB, eventID string) (bool, error)
}
