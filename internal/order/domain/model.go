package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentStatus is the order's payment lifecycle state.
type PaymentStatus string

const (
	StatusUnpaid     PaymentStatus = "unpaid"
	StatusProcessing PaymentStatus = "processing"
	StatusPending    PaymentStatus = "pending"
	StatusPaid       PaymentStatus = "paid"
	StatusFailed     PaymentStatus = "failed"
)

var (
	ErrNotFound = errors.New("order_not_found")
)

// Order is the business record for one customer submission requiring payment.
// PaymentAmount is in major currency units; the processor speaks minor units
// (see internal/currency).
type Order struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	FormID        int64         `json:"form_id" gorm:"not null;index"`
	FormTitle     string        `json:"form_title" gorm:"type:text;not null"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"type:text;not null"`
	PaymentAmount float64       `json:"payment_amount" gorm:"not null"`
	Currency      string        `json:"currency" gorm:"type:text;not null"`
	IsFulfilled   bool          `json:"is_fulfilled" gorm:"not null"`
	TransactionID string        `json:"transaction_id" gorm:"type:text"`
	PaymentMethod string        `json:"payment_method" gorm:"type:text"`
	PaymentDate   *time.Time    `json:"payment_date"`
	Note          string        `json:"note" gorm:"type:text"`
	CustomerName  string        `json:"customer_name" gorm:"type:text"`
	CustomerEmail string        `json:"customer_email" gorm:"type:text"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }
