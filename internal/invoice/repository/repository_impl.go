package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentora/escrow/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ?`,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &invoice, nil
}

func (r *repo) FindOverdue(ctx context.Context, db *gorm.DB, invoiceType domain.InvoiceType, cutoff time.Time, limit int) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	err := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("type = ? AND status = ? AND due_at < ?", invoiceType, domain.InvoiceStatusPending, cutoff).
		Order("due_at asc, id asc").
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) FindPendingByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID, invoiceType domain.InvoiceType) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM invoices
		 WHERE contract_id = ? AND type = ? AND status = ?
		 ORDER BY due_at ASC LIMIT 1`,
		contractID,
		invoiceType,
		domain.InvoiceStatusPending,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) SumPendingByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM invoices
		 WHERE contract_id = ? AND status = ?`,
		contractID,
		domain.InvoiceStatusPending,
	).Scan(&total).Error
	return total, err
}

func (r *repo) CancelPendingByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE contract_id = ? AND status = ?`,
		domain.InvoiceStatusCancelled,
		time.Now().UTC(),
		contractID,
		domain.InvoiceStatusPending,
	)
	return result.RowsAffected, result.Error
}
