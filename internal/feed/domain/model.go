package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrNotFound             = errors.New("feed_not_found")
	ErrEncryptionKeyMissing = errors.New("feed_encryption_key_missing")
	ErrInvalidConfig        = errors.New("feed_invalid_config")
)

// Feed binds one form to payment processing. When UseOverride is set the
// encrypted credential set replaces the global one wholesale; there is no
// per-field merging.
type Feed struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	FormID          int64          `json:"form_id" gorm:"not null;uniqueIndex"`
	Name            string         `json:"name" gorm:"type:text;not null"`
	IsActive        bool           `json:"is_active" gorm:"not null"`
	UseOverride     bool           `json:"use_override" gorm:"not null"`
	EncryptedConfig datatypes.JSON `json:"-" gorm:"type:jsonb"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null"`
}

func (Feed) TableName() string { return "feeds" }
