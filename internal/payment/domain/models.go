// Package domain contains persistence models for incoming payments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentStatus represents payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// PaymentKind distinguishes what a payment funds.
type PaymentKind string

const (
	PaymentKindDeposit PaymentKind = "DEPOSIT"
	PaymentKindRent    PaymentKind = "RENT"
)

// Payment is a completed or in-flight transfer from a party into the
// platform, optionally attached to an invoice.
type Payment struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	ContractID snowflake.ID  `gorm:"not null;index"`
	InvoiceID  *snowflake.ID `gorm:"index"`
	PayerID    snowflake.ID  `gorm:"not null;index"`
	Kind       PaymentKind   `gorm:"type:text;not null"`
	Status     PaymentStatus `gorm:"type:text;not null;default:'PENDING'"`
	Amount     int64         `gorm:"not null"`
	Currency   string        `gorm:"type:text;not null;default:'VND'"`
	Reference  string        `gorm:"type:text"`
	PaidAt     *time.Time    `gorm:""`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
