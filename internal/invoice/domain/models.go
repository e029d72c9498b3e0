// Package domain contains persistence models for rental invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// InvoiceType distinguishes the obligation an invoice bills for.
type InvoiceType string

const (
	InvoiceTypeFirstPayment InvoiceType = "FIRST_PAYMENT"
	InvoiceTypeMonthlyRent  InvoiceType = "MONTHLY_RENT"
	InvoiceTypeDeposit      InvoiceType = "DEPOSIT"
)

// Invoice bills one obligation on a contract. Period is the billing month in
// YYYY-MM form for monthly rent, empty for one-shot obligations.
type Invoice struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	ContractID snowflake.ID  `gorm:"not null;index"`
	TenantID   snowflake.ID  `gorm:"not null;index"`
	Type       InvoiceType   `gorm:"type:text;not null;index"`
	Status     InvoiceStatus `gorm:"type:text;not null;default:'PENDING';index"`
	Amount     int64         `gorm:"not null"`
	Currency   string        `gorm:"type:text;not null;default:'VND'"`
	Period     string        `gorm:"type:text;not null;default:''"`
	DueAt      time.Time     `gorm:"not null;index"`
	PaidAt     *time.Time    `gorm:""`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }
