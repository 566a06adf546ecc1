package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindActiveByFormID(ctx context.Context, db *gorm.DB, formID int64) (*Feed, error)
	Upsert(ctx context.Context, db *gorm.DB, feed *Feed) error
}
