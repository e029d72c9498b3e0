package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	// FindOverdue returns pending invoices of the given type past due at the
	// cutoff, oldest first.
	FindOverdue(ctx context.Context, db *gorm.DB, invoiceType InvoiceType, cutoff time.Time, limit int) ([]*Invoice, error)
	FindPendingByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID, invoiceType InvoiceType) (*Invoice, error)
	SumPendingByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID) (int64, error)
	// CancelPendingByContract flips every PENDING invoice on the contract to
	// CANCELLED. Returns the number of rows updated.
	CancelPendingByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID) (int64, error)
}
