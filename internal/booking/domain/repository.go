package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrBookingNotFound = errors.New("booking_not_found")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, booking *Booking) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Booking, error)
	// CancelByContract cancels every booking on the contract that is not
	// already cancelled or completed. Returns the number of rows updated.
	CancelByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID, reason string) (int64, error)
}
