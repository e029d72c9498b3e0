package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/rentora/escrow/internal/wallet/domain"
	"gorm.io/gorm"
)

// EnsureAccountRequest opens (or finds) the escrow account for a contract.
type EnsureAccountRequest struct {
	ContractID snowflake.ID
	TenantID   snowflake.ID
	LandlordID snowflake.ID
	Currency   string
}

// DepositRequest credits a party's escrow balance from a payment. The
// amount comes from the payment row itself; a payment that is not a
// COMPLETED deposit for the same contract fails with ErrInvalidState.
// PaymentID doubles as the idempotency key: crediting the same payment
// twice returns the original entry.
type DepositRequest struct {
	ContractID snowflake.ID
	Party      Party
	PaymentID  snowflake.ID
}

// DeductRequest debits a party's escrow balance and queues a wallet credit
// for the counterparty. Reference is the caller's idempotency key; a replay
// fails with ErrAlreadyApplied and moves no money.
type DeductRequest struct {
	ContractID snowflake.ID
	Party      Party
	Amount     int64
	Reference  string
	Reason     string
}

// RefundRequest debits a party's escrow balance back to its owner's wallet.
type RefundRequest struct {
	ContractID snowflake.ID
	Party      Party
	Amount     int64
	Reference  string
	Reason     string
}

// WalletCredit is a wallet payout owed after a ledger mutation commits.
// The ledger write and the wallet credit are deliberately decoupled: the
// caller dispatches credits only once the surrounding transaction is
// durable.
type WalletCredit struct {
	UserID      snowflake.ID
	Amount      int64
	Kind        walletdomain.CreditKind
	ReferenceID string
	Note        string
}

// Service is the escrow ledger. Balance-changing operations are atomic and
// keep both invariants: balances never go negative, and every change has
// exactly one transaction row.
//
// The Tx variants run against a caller-supplied transaction so penalty and
// settlement writes can commit atomically with their own records; they
// return the wallet credits owed, which the caller dispatches after commit
// via DispatchWalletCredits.
type Service interface {
	EnsureAccount(ctx context.Context, req EnsureAccountRequest) (*Account, error)
	CreditDeposit(ctx context.Context, req DepositRequest) (*Transaction, error)
	Deduct(ctx context.Context, req DeductRequest) (*Transaction, error)
	Refund(ctx context.Context, req RefundRequest) (*Transaction, error)

	DeductTx(ctx context.Context, tx *gorm.DB, req DeductRequest) (*Transaction, *WalletCredit, error)
	RefundTx(ctx context.Context, tx *gorm.DB, req RefundRequest) (*Transaction, *WalletCredit, error)
	CloseTx(ctx context.Context, tx *gorm.DB, contractID snowflake.ID) error

	DispatchWalletCredits(ctx context.Context, credits []WalletCredit)

	AccountByContract(ctx context.Context, contractID snowflake.ID) (*Account, error)
	Transactions(ctx context.Context, contractID snowflake.ID) ([]Transaction, error)
}
