package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/formgate/formgate/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, form_id, form_title, payment_status, payment_amount, currency,
	is_fulfilled, transaction_id, payment_method, payment_date, note,
	customer_name, customer_email, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.find(ctx, db, id, false)
}

func (r *repo) FindForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.find(ctx, tx, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + `
		 FROM orders
		 WHERE id = ?
		 LIMIT 1`
	// sqlite has no row locks; its single writer gives the same guarantee.
	if lock && db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var item domain.Order
	err := db.WithContext(ctx).Raw(query, id).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	return db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.FormID,
		order.FormTitle,
		order.PaymentStatus,
		order.PaymentAmount,
		order.Currency,
		order.IsFulfilled,
		order.TransactionID,
		order.PaymentMethod,
		order.PaymentDate,
		order.Note,
		order.CustomerName,
		order.CustomerEmail,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, tx *gorm.DB, order *domain.Order) error {
	order.UpdatedAt = time.Now().UTC()
	res := tx.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?, payment_amount = ?, currency = ?, is_fulfilled = ?,
			 transaction_id = ?, payment_method = ?, payment_date = ?, note = ?,
			 updated_at = ?
		 WHERE id = ?`,
		order.PaymentStatus,
		order.PaymentAmount,
		order.Currency,
		order.IsFulfilled,
		order.TransactionID,
		order.PaymentMethod,
		order.PaymentDate,
		order.Note,
		order.UpdatedAt,
		order.ID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
