package migration

import (
	bookingdomain "github.com/rentora/escrow/internal/booking/domain"
	chaindomain "github.com/rentora/escrow/internal/chain/domain"
	contractdomain "github.com/rentora/escrow/internal/contract/domain"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	invoicedomain "github.com/rentora/escrow/internal/invoice/domain"
	notificationdomain "github.com/rentora/escrow/internal/notification/domain"
	paymentdomain "github.com/rentora/escrow/internal/payment/domain"
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
	walletdomain "github.com/rentora/escrow/internal/wallet/domain"
	"github.com/rentora/escrow/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg db.Config) error {
		// The versioned SQL migrations target postgres. Other dialects are
		// for local development and tests, where AutoMigrate is enough.
		if cfg.Type != "postgres" {
			return conn.AutoMigrate(
				&contractdomain.Contract{},
				&contractdomain.Listing{},
				&bookingdomain.Booking{},
				&invoicedomain.Invoice{},
				&paymentdomain.Payment{},
				&escrowdomain.Account{},
				&escrowdomain.Transaction{},
				&penaltydomain.PenaltyRecord{},
				&walletdomain.Wallet{},
				&walletdomain.WalletTransaction{},
				&chaindomain.OutboxRow{},
				&notificationdomain.Notification{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
