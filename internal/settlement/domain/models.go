// Package domain defines termination settlement: the refund waterfall and
// the atomic status transitions that close out a contract.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrAlreadyTerminated = errors.New("contract_already_terminated")
	ErrMissingParty      = errors.New("settlement_missing_party")
)

// TerminationRequest asks for a contract to be settled and closed.
type TerminationRequest struct {
	ContractID snowflake.ID
	Reason     string
	// Initiator records who asked: "system:penalty_engine" for automated
	// terminations, "user:<id>" for manual ones.
	Initiator string
	// WaiveUnpaidInvoices skips the tenant contribution step: unpaid
	// invoices are cancelled without drawing on the tenant deposit. Used
	// when the landlord is at fault (missed handover).
	WaiveUnpaidInvoices bool
}

// WaterfallSplit is the outcome of the refund waterfall.
type WaterfallSplit struct {
	// TenantContribution is the slice of the tenant balance that settles
	// unpaid invoices. Paid to the landlord.
	TenantContribution int64
	// TenantRefund is what remains of the tenant balance after the
	// contribution.
	TenantRefund int64
	// LandlordAmount is the landlord balance plus the tenant contribution.
	LandlordAmount int64
	// Shortfall is the unpaid remainder the tenant balance could not cover.
	// It is reported, not paid: the landlord absorbs it.
	Shortfall int64
}

// Waterfall splits both escrow balances against the unpaid invoice total.
// The tenant pays unpaid obligations first, when able; every output is
// non-negative and the split never pays out more than was held.
func Waterfall(tenantBalance, landlordBalance, unpaidTotal int64) WaterfallSplit {
	if tenantBalance < 0 {
		tenantBalance = 0
	}
	if landlordBalance < 0 {
		landlordBalance = 0
	}
	if unpaidTotal < 0 {
		unpaidTotal = 0
	}

	contribution := unpaidTotal
	if contribution > tenantBalance {
		contribution = tenantBalance
	}
	return WaterfallSplit{
		TenantContribution: contribution,
		TenantRefund:       tenantBalance - contribution,
		LandlordAmount:     landlordBalance + contribution,
		Shortfall:          unpaidTotal - contribution,
	}
}

// SettlementResult summarizes one completed termination.
type SettlementResult struct {
	ContractID        snowflake.ID
	ContractCode      string
	Reason            string
	Initiator         string
	UnpaidTotal       int64
	Split             WaterfallSplit
	CancelledBookings int64
	CancelledInvoices int64
	ListingHidden     bool
	TerminatedAt      time.Time
}

// Service settles and terminates contracts. The contract transition, both
// refunds, and the booking and invoice cancellations commit in one local
// transaction; a refund failure aborts the whole settlement. Listing hide,
// blockchain record, wallet credits and notifications run after commit,
// best-effort.
type Service interface {
	Terminate(ctx context.Context, req TerminationRequest) (*SettlementResult, error)
}
