package domain

import "errors"

var (
	ErrRecordNotFound     = errors.New("penalty_record_not_found")
	ErrInvalidTransition  = errors.New("penalty_invalid_transition")
	ErrInvoiceNotOverdue  = errors.New("invoice_not_overdue")
	ErrContractNotPenal   = errors.New("contract_not_penalizable")
	ErrBookingNotEligible = errors.New("booking_not_eligible_for_cancellation")
)
