package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/fulfillment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, fulfillment *domain.Fulfillment) (bool, error) {
	if fulfillment.CreatedAt.IsZero() {
		fulfillment.CreatedAt = time.Now().UTC()
	}
	res := db.WithContext(ctx).Exec(
		`INSERT INTO fulfillments (id, order_id, reference, form_slug, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (order_id) DO NOTHING`,
		fulfillment.ID,
		fulfillment.OrderID,
		fulfillment.Reference,
		fulfillment.FormSlug,
		fulfillment.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Fulfillment, error) {
	var item domain.Fulfillment
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, reference, form_slug, created_at
		 FROM fulfillments
		 WHERE order_id = ?
		 LIMIT 1`,
		orderID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &item, nil
}
