package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrContractNotFound = errors.New("contract_not_found")
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, contract *Contract) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Contract, error)
	// FindOverdueHandovers returns active contracts whose first payment
	// completed before the cutoff and whose unit was never handed over.
	FindOverdueHandovers(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*Contract, error)
	MarkTerminated(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) error
	// MarkFirstPaymentPaid records the first deposit payment and activates
	// the contract. A second call is a no-op.
	MarkFirstPaymentPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// CountOccupied reports contracts still holding the property (and room,
	// when set) after excluding the given contract.
	CountOccupied(ctx context.Context, db *gorm.DB, propertyID snowflake.ID, roomID *snowflake.ID, exclude snowflake.ID) (int64, error)
	HideListing(ctx context.Context, db *gorm.DB, propertyID snowflake.ID, roomID *snowflake.ID) error
}
