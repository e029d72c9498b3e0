// Package domain contains persistence models for rental contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ContractStatus represents contract lifecycle states.
type ContractStatus string

const (
	ContractStatusPendingPayment ContractStatus = "PENDING_PAYMENT"
	ContractStatusActive         ContractStatus = "ACTIVE"
	ContractStatusCompleted      ContractStatus = "COMPLETED"
	ContractStatusTerminated     ContractStatus = "TERMINATED"
)

// Contract represents a signed rental contract between a tenant and a
// landlord. The escrow account, invoices and penalty records all hang off it.
type Contract struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	Code       string         `gorm:"type:text;not null;uniqueIndex"`
	PropertyID snowflake.ID   `gorm:"not null;index"`
	RoomID     *snowflake.ID  `gorm:"index"`
	TenantID   snowflake.ID   `gorm:"not null;index"`
	LandlordID snowflake.ID   `gorm:"not null;index"`
	Status     ContractStatus `gorm:"type:text;not null;default:'PENDING_PAYMENT'"`

	MonthlyRent   int64  `gorm:"not null"`
	DepositAmount int64  `gorm:"not null"`
	Currency      string `gorm:"type:text;not null;default:'VND'"`

	StartDate time.Time  `gorm:"not null"`
	EndDate   *time.Time `gorm:""`

	FirstPaymentDueAt  *time.Time `gorm:"index"`
	FirstPaymentPaidAt *time.Time `gorm:""`
	HandoverAt         *time.Time `gorm:""`

	TerminatedAt      *time.Time `gorm:""`
	TerminationReason string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Contract) TableName() string { return "contracts" }

// Listing is the public visibility flag for a property or room. Hidden on
// booking, shown again when the unit is fully vacated.
type Listing struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	PropertyID snowflake.ID  `gorm:"not null;index"`
	RoomID     *snowflake.ID `gorm:"index"`
	Visible    bool          `gorm:"not null;default:true"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Listing) TableName() string { return "listings" }
