package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type repository struct{}

// NewRepository returns a stateless penalty record store. Every method
// takes the database handle so callers control transaction scope.
func NewRepository() penaltydomain.Repository {
	return &repository{}
}

var Module = fx.Module("penalty.repository",
	fx.Provide(NewRepository),
)

func (r *repository) InsertApplied(ctx context.Context, db *gorm.DB, record *penaltydomain.PenaltyRecord) (bool, error) {
	result := db.WithContext(ctx).Exec(`
		INSERT INTO penalty_records (id, contract_id, tenant_id, party, penalty_type, period, applied_on, days_past_due, original_amount, penalty_amount, penalty_rate, reason, status, applied_by, applied_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, penalty_type, period, applied_on) DO NOTHING
	`,
		record.ID,
		record.ContractID,
		record.TenantID,
		record.Party,
		record.PenaltyType,
		record.Period,
		record.AppliedOn,
		record.DaysPastDue,
		record.OriginalAmount,
		record.PenaltyAmount,
		record.PenaltyRate,
		record.Reason,
		penaltydomain.PenaltyStatusApplied,
		record.AppliedBy,
		record.AppliedAt,
		record.AppliedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*penaltydomain.PenaltyRecord, error) {
	var record penaltydomain.PenaltyRecord
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, penaltydomain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID) ([]*penaltydomain.PenaltyRecord, error) {
	var records []*penaltydomain.PenaltyRecord
	err := db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("applied_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) CountForPeriod(ctx context.Context, db *gorm.DB, contractID snowflake.ID, penaltyType penaltydomain.PenaltyType, period string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&penaltydomain.PenaltyRecord{}).
		Where("contract_id = ? AND penalty_type = ? AND period = ?", contractID, penaltyType, period).
		Count(&count).Error
	return count, err
}

func (r *repository) SumAppliedForTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(penalty_amount), 0) FROM penalty_records
		WHERE tenant_id = ? AND party = 'TENANT' AND status = ?
	`, tenantID, penaltydomain.PenaltyStatusApplied).Scan(&total).Error
	return total, err
}

func (r *repository) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to penaltydomain.PenaltyStatus) error {
	if !penaltydomain.CanTransition(from, to) {
		return penaltydomain.ErrInvalidTransition
	}
	result := db.WithContext(ctx).Exec(`
		UPDATE penalty_records SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, to, time.Now().UTC(), id, from)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := db.WithContext(ctx).
			Model(&penaltydomain.PenaltyRecord{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return penaltydomain.ErrRecordNotFound
		}
		return penaltydomain.ErrInvalidTransition
	}
	return nil
}
