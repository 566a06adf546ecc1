package repository

import (
	"context"
	"time"

	"github.com/formgate/formgate/internal/ledger/domain"
	pkgdb "github.com/formgate/formgate/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Register(ctx context.Context, db *gorm.DB, entry *domain.Entry) (bool, error) {
	if entry.RegisteredAt.IsZero() {
		entry.RegisteredAt = time.Now().UTC()
	}
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payment_event_ledger (id, event_id, order_id, source, registered_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (event_id) DO NOTHING`,
		entry.ID,
		entry.EventID,
		entry.OrderID,
		entry.Source,
		entry.RegisteredAt,
	)
	if res.Error != nil {
		// A concurrent insert racing past the conflict clause still means the
		// event is registered.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) IsRegistered(ctx context.Context, db *gorm.DB, eventID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_event_ledger WHERE event_id = ?`,
		eventID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
