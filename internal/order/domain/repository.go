package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// FindForUpdate locks the order row for the duration of the enclosing
	// transaction. Callers must pass a *gorm.DB obtained inside db.Transaction.
	FindForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Order, error)
	Create(ctx context.Context, db *gorm.DB, order *Order) error
	Update(ctx context.Context, tx *gorm.DB, order *Order) error
}
