package repository

import (
	"context"
	"time"

	"github.com/formgate/formgate/internal/feed/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const feedColumns = `id, form_id, name, is_active, use_override, encrypted_config, created_at, updated_at`

func (r *repo) FindActiveByFormID(ctx context.Context, db *gorm.DB, formID int64) (*domain.Feed, error) {
	var item domain.Feed
	err := db.WithContext(ctx).Raw(
		`SELECT `+feedColumns+`
		 FROM feeds
		 WHERE form_id = ? AND is_active = ?
		 LIMIT 1`,
		formID, true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, feed *domain.Feed) error {
	now := time.Now().UTC()
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = now
	}
	feed.UpdatedAt = now
	return db.WithContext(ctx).Exec(
		`INSERT INTO feeds (`+feedColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (form_id) DO UPDATE SET
			 name = excluded.name,
			 is_active = excluded.is_active,
			 use_override = excluded.use_override,
			 encrypted_config = excluded.encrypted_config,
			 updated_at = excluded.updated_at`,
		feed.ID,
		feed.FormID,
		feed.Name,
		feed.IsActive,
		feed.UseOverride,
		feed.EncryptedConfig,
		feed.CreatedAt,
		feed.UpdatedAt,
	).Error
}
