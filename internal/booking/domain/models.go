// Package domain contains persistence models for bookings.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BookingStatus represents booking lifecycle states.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// Booking ties a tenant's reservation to a contract.
type Booking struct {
	ID         snowflake.ID  `gorm:"primaryKey"`
	ContractID snowflake.ID  `gorm:"not null;index"`
	PropertyID snowflake.ID  `gorm:"not null;index"`
	RoomID     *snowflake.ID `gorm:"index"`
	TenantID   snowflake.ID  `gorm:"not null;index"`
	Status     BookingStatus `gorm:"type:text;not null;default:'PENDING'"`

	CancelledReason string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Booking) TableName() string { return "bookings" }
