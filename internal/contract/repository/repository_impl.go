package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentora/escrow/internal/contract/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, contract *domain.Contract) error {
	return db.WithContext(ctx).Create(contract).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Contract, error) {
	var contract domain.Contract
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM contracts WHERE id = ?`,
		id,
	).Scan(&contract).Error
	if err != nil {
		return nil, err
	}
	if contract.ID == 0 {
		return nil, domain.ErrContractNotFound
	}
	return &contract, nil
}

func (r *repo) FindOverdueHandovers(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]*domain.Contract, error) {
	var contracts []*domain.Contract
	err := db.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("status = ?", domain.ContractStatusActive).
		Where("first_payment_paid_at IS NOT NULL AND first_payment_paid_at <= ?", cutoff).
		Where("handover_at IS NULL").
		Order("first_payment_paid_at asc, id asc").
		Limit(limit).
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *repo) MarkTerminated(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contracts
		 SET status = ?, termination_reason = ?, terminated_at = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.ContractStatusTerminated,
		reason,
		at,
		at,
		id,
		domain.ContractStatusTerminated,
	).Error
}

func (r *repo) MarkFirstPaymentPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE contracts
		 SET status = ?, first_payment_paid_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND first_payment_paid_at IS NULL`,
		domain.ContractStatusActive,
		at,
		at,
		id,
		domain.ContractStatusPendingPayment,
	).Error
}

func (r *repo) CountOccupied(ctx context.Context, db *gorm.DB, propertyID snowflake.ID, roomID *snowflake.ID, exclude snowflake.ID) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("property_id = ?", propertyID).
		Where("id <> ?", exclude).
		Where("status IN ?", []domain.ContractStatus{domain.ContractStatusPendingPayment, domain.ContractStatusActive})
	if roomID != nil {
		stmt = stmt.Where("room_id = ?", *roomID)
	}
	var count int64
	err := stmt.Count(&count).Error
	return count, err
}

func (r *repo) HideListing(ctx context.Context, db *gorm.DB, propertyID snowflake.ID, roomID *snowflake.ID) error {
	stmt := db.WithContext(ctx).
		Model(&domain.Listing{}).
		Where("property_id = ?", propertyID)
	if roomID != nil {
		stmt = stmt.Where("room_id = ?", *roomID)
	}
	return stmt.Updates(map[string]any{
		"visible":    false,
		"updated_at": time.Now().UTC(),
	}).Error
}
