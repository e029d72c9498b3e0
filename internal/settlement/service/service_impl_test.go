package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	bookingdomain "github.com/rentora/escrow/internal/booking/domain"
	bookingrepo "github.com/rentora/escrow/internal/booking/repository"
	chaindomain "github.com/rentora/escrow/internal/chain/domain"
	chainservice "github.com/rentora/escrow/internal/chain/service"
	"github.com/rentora/escrow/internal/clock"
	"github.com/rentora/escrow/internal/config"
	contractdomain "github.com/rentora/escrow/internal/contract/domain"
	contractrepo "github.com/rentora/escrow/internal/contract/repository"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	escrowservice "github.com/rentora/escrow/internal/escrow/service"
	invoicedomain "github.com/rentora/escrow/internal/invoice/domain"
	invoicerepo "github.com/rentora/escrow/internal/invoice/repository"
	notificationdomain "github.com/rentora/escrow/internal/notification/domain"
	notificationservice "github.com/rentora/escrow/internal/notification/service"
	paymentdomain "github.com/rentora/escrow/internal/payment/domain"
	paymentrepo "github.com/rentora/escrow/internal/payment/repository"
	settlementdomain "github.com/rentora/escrow/internal/settlement/domain"
	walletdomain "github.com/rentora/escrow/internal/wallet/domain"
	walletservice "github.com/rentora/escrow/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tenantID   snowflake.ID = 11
	landlordID snowflake.ID = 22
	contractID snowflake.ID = 100
)

type fixture struct {
	db     *gorm.DB
	clock  *clock.FakeClock
	escrow escrowdomain.Service
	svc    settlementdomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&contractdomain.Contract{},
		&contractdomain.Listing{},
		&bookingdomain.Booking{},
		&invoicedomain.Invoice{},
		&paymentdomain.Payment{},
		&escrowdomain.Account{},
		&escrowdomain.Transaction{},
		&walletdomain.Wallet{},
		&walletdomain.WalletTransaction{},
		&chaindomain.OutboxRow{},
		&notificationdomain.Notification{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{Wallet: config.WalletConfig{CreditTimeout: 5 * time.Second}}

	wallet := walletservice.NewService(walletservice.Params{DB: db, Log: log, GenID: node})
	escrow := escrowservice.NewService(escrowservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Config: cfg, Wallet: wallet,
		Payments: paymentrepo.Provide(),
	})
	chain := chainservice.NewService(chainservice.Params{DB: db, Log: log, GenID: node, Config: cfg})
	notifier := notificationservice.NewService(notificationservice.Params{DB: db, Log: log, GenID: node})

	svc := NewService(Params{
		DB:        db,
		Log:       log,
		Clock:     fake,
		Contracts: contractrepo.Provide(),
		Bookings:  bookingrepo.Provide(),
		Invoices:  invoicerepo.Provide(),
		Escrow:    escrow,
		Chain:     chain,
		Notifier:  notifier,
	})
	return &fixture{db: db, clock: fake, escrow: escrow, svc: svc}
}

func (f *fixture) seedContract(t *testing.T, tenantBalance, landlordBalance int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.db.Create(&contractdomain.Contract{
		ID:          contractID,
		Code:        "CT-100",
		PropertyID:  500,
		TenantID:    tenantID,
		LandlordID:  landlordID,
		Status:      contractdomain.ContractStatusActive,
		MonthlyRent: 10_000_000,
		StartDate:   f.clock.Now().AddDate(0, -1, 0),
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
	}).Error)
	require.NoError(t, f.db.Create(&contractdomain.Listing{
		ID: 600, PropertyID: 500, Visible: true, UpdatedAt: f.clock.Now(),
	}).Error)
	require.NoError(t, f.db.Create(&bookingdomain.Booking{
		ID: 700, ContractID: contractID, PropertyID: 500, TenantID: tenantID,
		Status:    bookingdomain.BookingStatusConfirmed,
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}).Error)

	_, err := f.escrow.EnsureAccount(ctx, escrowdomain.EnsureAccountRequest{
		ContractID: contractID, TenantID: tenantID, LandlordID: landlordID,
	})
	require.NoError(t, err)
	if tenantBalance > 0 {
		f.seedDepositPayment(t, 1, tenantID, tenantBalance)
		_, err = f.escrow.CreditDeposit(ctx, escrowdomain.DepositRequest{
			ContractID: contractID, Party: escrowdomain.PartyTenant, PaymentID: 1,
		})
		require.NoError(t, err)
	}
	if landlordBalance > 0 {
		f.seedDepositPayment(t, 2, landlordID, landlordBalance)
		_, err = f.escrow.CreditDeposit(ctx, escrowdomain.DepositRequest{
			ContractID: contractID, Party: escrowdomain.PartyLandlord, PaymentID: 2,
		})
		require.NoError(t, err)
	}
}

func (f *fixture) seedDepositPayment(t *testing.T, id, payer snowflake.ID, amount int64) {
	t.Helper()
	paid := f.clock.Now()
	require.NoError(t, f.db.Create(&paymentdomain.Payment{
		ID: id, ContractID: contractID, PayerID: payer,
		Kind: paymentdomain.PaymentKindDeposit, Status: paymentdomain.PaymentStatusCompleted,
		Amount: amount, Currency: "VND", PaidAt: &paid,
		CreatedAt: paid, UpdatedAt: paid,
	}).Error)
}

func (f *fixture) seedPendingInvoice(t *testing.T, amount int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&invoicedomain.Invoice{
		ID: 800, ContractID: contractID, TenantID: tenantID,
		Type: invoicedomain.InvoiceTypeMonthlyRent, Status: invoicedomain.InvoiceStatusPending,
		Amount: amount, Period: "2026-02",
		DueAt:     f.clock.Now().AddDate(0, 0, -10),
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}).Error)
}

func (f *fixture) walletBalance(t *testing.T, userID snowflake.ID) int64 {
	t.Helper()
	var w walletdomain.Wallet
	err := f.db.Where("user_id = ?", userID).First(&w).Error
	if err == gorm.ErrRecordNotFound {
		return 0
	}
	require.NoError(t, err)
	return w.Balance
}

func TestTerminateTenantCoversUnpaid(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, 10_000_000, 8_000_000)
	f.seedPendingInvoice(t, 2_500_000)

	result, err := f.svc.Terminate(context.Background(), settlementdomain.TerminationRequest{
		ContractID: contractID,
		Reason:     "tenant default",
		Initiator:  "user:22",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2_500_000), result.UnpaidTotal)
	assert.Equal(t, settlementdomain.WaterfallSplit{
		TenantContribution: 2_500_000,
		TenantRefund:       7_500_000,
		LandlordAmount:     10_500_000,
		Shortfall:          0,
	}, result.Split)
	assert.Equal(t, int64(1), result.CancelledBookings)
	assert.Equal(t, int64(1), result.CancelledInvoices)

	var contract contractdomain.Contract
	require.NoError(t, f.db.First(&contract, "id = ?", contractID).Error)
	assert.Equal(t, contractdomain.ContractStatusTerminated, contract.Status)
	assert.Equal(t, "tenant default", contract.TerminationReason)

	account, err := f.escrow.AccountByContract(context.Background(), contractID)
	require.NoError(t, err)
	assert.Equal(t, escrowdomain.AccountStatusClosed, account.Status)
	assert.Zero(t, account.TenantBalance)
	assert.Zero(t, account.LandlordBalance)

	assert.Equal(t, int64(7_500_000), f.walletBalance(t, tenantID))
	assert.Equal(t, int64(10_500_000), f.walletBalance(t, landlordID))

	var events []chaindomain.OutboxRow
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, "contract.terminated", events[0].EventName)

	var notified int64
	require.NoError(t, f.db.Model(&notificationdomain.Notification{}).Count(&notified).Error)
	assert.Equal(t, int64(2), notified)
}

func TestTerminateShortfallAbsorbedByLandlord(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, 500_000, 8_000_000)
	f.seedPendingInvoice(t, 800_000)

	result, err := f.svc.Terminate(context.Background(), settlementdomain.TerminationRequest{
		ContractID: contractID,
		Reason:     "tenant default",
		Initiator:  "user:22",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500_000), result.Split.TenantContribution)
	assert.Zero(t, result.Split.TenantRefund)
	assert.Equal(t, int64(8_500_000), result.Split.LandlordAmount)
	assert.Equal(t, int64(300_000), result.Split.Shortfall)

	assert.Zero(t, f.walletBalance(t, tenantID))
	assert.Equal(t, int64(8_500_000), f.walletBalance(t, landlordID))
}

func TestTerminateWaivesUnpaidInvoices(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, 10_000_000, 8_000_000)
	f.seedPendingInvoice(t, 2_500_000)

	result, err := f.svc.Terminate(context.Background(), settlementdomain.TerminationRequest{
		ContractID:          contractID,
		Reason:              "handover deadline missed",
		Initiator:           "system:penalty_engine",
		WaiveUnpaidInvoices: true,
	})
	require.NoError(t, err)

	assert.Zero(t, result.UnpaidTotal)
	assert.Equal(t, int64(10_000_000), result.Split.TenantRefund)
	assert.Equal(t, int64(10_000_000), f.walletBalance(t, tenantID))
	// The waived invoice is still cancelled.
	assert.Equal(t, int64(1), result.CancelledInvoices)
}

func TestTerminateTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, 1_000_000, 0)

	_, err := f.svc.Terminate(context.Background(), settlementdomain.TerminationRequest{
		ContractID: contractID, Reason: "manual", Initiator: "user:11",
	})
	require.NoError(t, err)

	_, err = f.svc.Terminate(context.Background(), settlementdomain.TerminationRequest{
		ContractID: contractID, Reason: "manual", Initiator: "user:11",
	})
	assert.ErrorIs(t, err, settlementdomain.ErrAlreadyTerminated)
}

func TestTerminateHidesVacatedListing(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, 1_000_000, 0)

	result, err := f.svc.Terminate(context.Background(), settlementdomain.TerminationRequest{
		ContractID: contractID, Reason: "manual", Initiator: "user:11",
	})
	require.NoError(t, err)
	assert.True(t, result.ListingHidden)

	var listing contractdomain.Listing
	require.NoError(t, f.db.First(&listing, "id = ?", 600).Error)
	assert.False(t, listing.Visible)
}

func TestTerminateWithoutEscrowAccount(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Create(&contractdomain.Contract{
		ID: 101, Code: "CT-101", PropertyID: 501,
		TenantID: tenantID, LandlordID: landlordID,
		Status:    contractdomain.ContractStatusPendingPayment,
		StartDate: f.clock.Now(),
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}).Error)

	result, err := f.svc.Terminate(context.Background(), settlementdomain.TerminationRequest{
		ContractID: 101, Reason: "voided before payment", Initiator: "user:11",
	})
	require.NoError(t, err)
	assert.Zero(t, result.Split.TenantRefund)
	assert.Zero(t, result.Split.LandlordAmount)
	assert.Zero(t, f.walletBalance(t, tenantID))
}
