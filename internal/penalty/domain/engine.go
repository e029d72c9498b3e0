package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Outcome classifies what the engine did with one obligation.
type Outcome string

const (
	OutcomeApplied    Outcome = "APPLIED"
	OutcomeSkipped    Outcome = "SKIPPED"
	OutcomeTerminated Outcome = "TERMINATED"
	OutcomeCancelled  Outcome = "CANCELLED"
)

// ApplyResult reports what happened to a single overdue obligation.
type ApplyResult struct {
	Outcome       Outcome
	ContractID    snowflake.ID
	PenaltyAmount int64
	Record        *PenaltyRecord
	Reason        string
}

// BatchResult aggregates one scheduler run. Failed obligations are counted
// and logged; they never stop the batch.
type BatchResult struct {
	Processed  int
	Applied    int
	Terminated int
	Skipped    int
	Failed     int
}

// Add folds one obligation outcome into the batch totals.
func (r *BatchResult) Add(res *ApplyResult) {
	r.Processed++
	if res == nil {
		return
	}
	switch res.Outcome {
	case OutcomeApplied:
		r.Applied++
	case OutcomeTerminated, OutcomeCancelled:
		r.Terminated++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// Engine scans overdue obligations and applies capped penalties, or hands
// the contract to settlement when it can no longer continue. Batch methods
// are continue-on-error and idempotent per (contract, type, period, day).
type Engine interface {
	ProcessFirstPaymentOverdue(ctx context.Context) (BatchResult, error)
	ProcessMonthlyRentOverdue(ctx context.Context) (BatchResult, error)
	ProcessHandoverOverdue(ctx context.Context) (BatchResult, error)

	// ApplyPaymentOverduePenalty runs the overdue progression for one
	// invoice, exactly as the batch would.
	ApplyPaymentOverduePenalty(ctx context.Context, invoiceID snowflake.ID) (*ApplyResult, error)
	// CancelBookingForLateDeposit voids a booking whose deposit was never
	// paid within the grace window. No money moves; nothing was escrowed.
	CancelBookingForLateDeposit(ctx context.Context, bookingID snowflake.ID) (*ApplyResult, error)

	PenaltyHistoryForContract(ctx context.Context, contractID snowflake.ID) ([]*PenaltyRecord, error)
	TotalPenaltiesForTenant(ctx context.Context, tenantID snowflake.ID) (int64, error)
	// ResolveRecordStatus applies a dispute-resolution transition.
	ResolveRecordStatus(ctx context.Context, recordID snowflake.ID, to PenaltyStatus) error
}

// Repository persists penalty records. Methods take the database handle so
// inserts can share a transaction with the matching ledger deduction.
type Repository interface {
	// InsertApplied writes an APPLIED record. Returns false without error
	// when the idempotency key already exists.
	InsertApplied(ctx context.Context, db *gorm.DB, record *PenaltyRecord) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PenaltyRecord, error)
	FindByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID) ([]*PenaltyRecord, error)
	// CountForPeriod counts records for (contract, type, period) regardless
	// of day. Zero means the first occurrence for the period.
	CountForPeriod(ctx context.Context, db *gorm.DB, contractID snowflake.ID, penaltyType PenaltyType, period string) (int64, error)
	SumAppliedForTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error)
	// UpdateStatus transitions from -> to, guarded in the WHERE clause.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to PenaltyStatus) error
}
