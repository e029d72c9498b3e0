// Package domain defines the escrow ledger: per-contract accounts holding
// the tenant and landlord deposits, and the append-only transaction log
// every balance change flows through.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccountStatus is the lifecycle state of an escrow account.
type AccountStatus string

const (
	AccountStatusOpen   AccountStatus = "OPEN"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// Party identifies which side of the contract a balance or transaction
// belongs to.
type Party string

const (
	PartyTenant   Party = "TENANT"
	PartyLandlord Party = "LANDLORD"
)

// Direction is the sign of a transaction relative to the escrow balance.
type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

// TransactionType tags the business reason for a ledger entry.
type TransactionType string

const (
	TxTypeDeposit    TransactionType = "DEPOSIT"
	TxTypeDeduction  TransactionType = "DEDUCTION"
	TxTypeRefund     TransactionType = "REFUND"
	TxTypeAdjustment TransactionType = "ADJUSTMENT"
)

// Account holds both parties' escrowed deposits for one contract. Balances
// are minor currency units and never go negative.
type Account struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	ContractID      snowflake.ID  `gorm:"not null;uniqueIndex"`
	TenantID        snowflake.ID  `gorm:"not null;index"`
	LandlordID      snowflake.ID  `gorm:"not null;index"`
	TenantBalance   int64         `gorm:"not null;default:0"`
	LandlordBalance int64         `gorm:"not null;default:0"`
	Currency        string        `gorm:"type:text;not null;default:'VND'"`
	Status          AccountStatus `gorm:"type:text;not null;default:'OPEN'"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "escrow_accounts" }

// Balance returns the balance held for the given party.
func (a *Account) Balance(p Party) int64 {
	if p == PartyLandlord {
		return a.LandlordBalance
	}
	return a.TenantBalance
}

// Owner returns the user who owns the given party's balance.
func (a *Account) Owner(p Party) snowflake.ID {
	if p == PartyLandlord {
		return a.LandlordID
	}
	return a.TenantID
}

// Counterparty returns the user on the other side of the given party.
func (a *Account) Counterparty(p Party) snowflake.ID {
	if p == PartyLandlord {
		return a.TenantID
	}
	return a.LandlordID
}

// Transaction is one immutable ledger entry. Reference carries the caller's
// idempotency key; the unique index makes replays a no-op.
type Transaction struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	AccountID    snowflake.ID    `gorm:"not null;index"`
	ContractID   snowflake.ID    `gorm:"not null;index"`
	Party        Party           `gorm:"type:text;not null"`
	Direction    Direction       `gorm:"type:text;not null"`
	Type         TransactionType `gorm:"type:text;not null"`
	Amount       int64           `gorm:"not null"`
	BalanceAfter int64           `gorm:"not null"`
	Reference    string          `gorm:"type:text;not null;uniqueIndex"`
	Reason       string          `gorm:"type:text"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "escrow_transactions" }
