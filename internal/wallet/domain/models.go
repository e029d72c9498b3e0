// Package domain contains the wallet credit sink the escrow ledger pays into.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// CreditKind tags the business reason for a wallet credit.
type CreditKind string

const (
	CreditKindEscrowDeduction CreditKind = "escrow_deduction"
	CreditKindEscrowRefund    CreditKind = "escrow_refund"
)

// Wallet holds a user's spendable balance in minor currency units.
type Wallet struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex"`
	Balance   int64        `gorm:"not null;default:0"`
	Currency  string       `gorm:"type:text;not null;default:'VND'"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Wallet) TableName() string { return "wallets" }

// WalletTransaction records one wallet credit.
type WalletTransaction struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	UserID      snowflake.ID `gorm:"not null;index"`
	Amount      int64        `gorm:"not null"`
	Kind        CreditKind   `gorm:"type:text;not null"`
	ReferenceID string       `gorm:"type:text;not null;index"`
	Note        string       `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (WalletTransaction) TableName() string { return "wallet_transactions" }

// CreditRequest asks the wallet to credit a user.
type CreditRequest struct {
	UserID      snowflake.ID
	Amount      int64
	Kind        CreditKind
	ReferenceID string
	Note        string
}

// Service is the wallet credit sink. The escrow ledger treats it as a
// best-effort collaborator: failures are logged, never rolled into the
// ledger outcome.
type Service interface {
	Credit(ctx context.Context, req CreditRequest) error
}
