// Package domain defines penalty records and the engine boundary. Records
// are append-only; the composite key (contract, type, period, day) is the
// idempotency token that makes batch re-runs safe.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PenaltyType names the overdue obligation a penalty was applied for.
type PenaltyType string

const (
	PenaltyTypeFirstPayment PenaltyType = "FIRST_PAYMENT_OVERDUE"
	PenaltyTypeMonthlyRent  PenaltyType = "MONTHLY_RENT_OVERDUE"
	PenaltyTypeHandover     PenaltyType = "HANDOVER_OVERDUE"
)

// PenaltyStatus is the record lifecycle. Records are applied once and only
// ever mutated by dispute resolution.
type PenaltyStatus string

const (
	PenaltyStatusApplied  PenaltyStatus = "APPLIED"
	PenaltyStatusWaived   PenaltyStatus = "WAIVED"
	PenaltyStatusDisputed PenaltyStatus = "DISPUTED"
	PenaltyStatusReversed PenaltyStatus = "REVERSED"
)

// CanTransition reports whether a status change is allowed. APPLIED opens a
// dispute or is waived/reversed outright; a dispute resolves back to
// applied, or to waived or reversed.
func CanTransition(from, to PenaltyStatus) bool {
	switch from {
	case PenaltyStatusApplied:
		return to == PenaltyStatusWaived || to == PenaltyStatusDisputed || to == PenaltyStatusReversed
	case PenaltyStatusDisputed:
		return to == PenaltyStatusApplied || to == PenaltyStatusWaived || to == PenaltyStatusReversed
	default:
		return false
	}
}

// PenaltyRecord is one applied penalty. The four ux_penalty_once columns
// form the idempotency key: at most one record per contract, type, period
// and calendar day.
type PenaltyRecord struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	ContractID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_penalty_once"`
	TenantID    snowflake.ID `gorm:"not null;index"`
	Party       string       `gorm:"type:text;not null"`
	PenaltyType PenaltyType  `gorm:"type:text;not null;uniqueIndex:ux_penalty_once"`
	// Period is the billing month (YYYY-MM) for rent penalties, or a fixed
	// marker for one-shot obligations.
	Period string `gorm:"type:text;not null;uniqueIndex:ux_penalty_once"`
	// AppliedOn is the UTC calendar day (YYYY-MM-DD) of application.
	AppliedOn string `gorm:"type:text;not null;uniqueIndex:ux_penalty_once"`

	DaysPastDue    int   `gorm:"not null"`
	OriginalAmount int64 `gorm:"not null"`
	PenaltyAmount  int64 `gorm:"not null"`
	// PenaltyRate is the per-day rate as a decimal fraction (0.0003 means
	// 0.03% per day); the handover record stores its one-shot share instead.
	PenaltyRate decimal.Decimal `gorm:"type:decimal(12,8);not null"`
	Reason         string          `gorm:"type:text"`
	Status         PenaltyStatus   `gorm:"type:text;not null;default:'APPLIED'"`
	AppliedBy      string          `gorm:"type:text;not null"`
	AppliedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PenaltyRecord) TableName() string { return "penalty_records" }
