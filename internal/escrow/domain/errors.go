package domain

import "errors"

var (
	ErrAccountNotFound     = errors.New("escrow_account_not_found")
	ErrInvalidState        = errors.New("escrow_invalid_state")
	ErrInsufficientBalance = errors.New("escrow_insufficient_balance")
	ErrInvalidAmount       = errors.New("escrow_invalid_amount")
	ErrAlreadyApplied      = errors.New("escrow_already_applied")
)
