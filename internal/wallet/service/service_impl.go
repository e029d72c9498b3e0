package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/rentora/escrow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidAmount = errors.New("invalid_amount")
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("wallet.service"),
		genID: p.GenID,
	}
}

// Credit adds funds to the user's wallet and records the transaction. The
// wallet row is created on first credit.
func (s *Service) Credit(ctx context.Context, req walletdomain.CreditRequest) error {
	if req.UserID == 0 {
		return ErrInvalidUser
	}
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO wallets (id, user_id, balance, currency, created_at, updated_at)
			 VALUES (?, ?, 0, 'VND', ?, ?)
			 ON CONFLICT (user_id) DO NOTHING`,
			s.genID.Generate(),
			req.UserID,
			now,
			now,
		).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Exec(
			`UPDATE wallets SET balance = balance + ?, updated_at = ? WHERE user_id = ?`,
			req.Amount,
			now,
			req.UserID,
		).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Exec(
			`INSERT INTO wallet_transactions (id, user_id, amount, kind, reference_id, note, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			req.UserID,
			req.Amount,
			string(req.Kind),
			req.ReferenceID,
			req.Note,
			now,
		).Error
	})
}
