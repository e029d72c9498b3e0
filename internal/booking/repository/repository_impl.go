package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentora/escrow/internal/booking/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, booking *domain.Booking) error {
	return db.WithContext(ctx).Create(booking).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Booking, error) {
	var booking domain.Booking
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM bookings WHERE id = ?`,
		id,
	).Scan(&booking).Error
	if err != nil {
		return nil, err
	}
	if booking.ID == 0 {
		return nil, domain.ErrBookingNotFound
	}
	return &booking, nil
}

func (r *repo) CancelByContract(ctx context.Context, db *gorm.DB, contractID snowflake.ID, reason string) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE bookings
		 SET status = ?, cancelled_reason = ?, updated_at = ?
		 WHERE contract_id = ? AND status NOT IN (?, ?)`,
		domain.BookingStatusCancelled,
		reason,
		time.Now().UTC(),
		contractID,
		domain.BookingStatusCancelled,
		domain.BookingStatusCompleted,
	)
	return result.RowsAffected, result.Error
}
