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
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
	penaltyrepo "github.com/rentora/escrow/internal/penalty/repository"
	settlementservice "github.com/rentora/escrow/internal/settlement/service"
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
	engine penaltydomain.Engine
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
		&penaltydomain.PenaltyRecord{},
		&walletdomain.Wallet{},
		&walletdomain.WalletTransaction{},
		&chaindomain.OutboxRow{},
		&notificationdomain.Notification{},
	))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{Wallet: config.WalletConfig{CreditTimeout: 5 * time.Second}}

	contracts := contractrepo.Provide()
	bookings := bookingrepo.Provide()
	invoices := invoicerepo.Provide()

	wallet := walletservice.NewService(walletservice.Params{DB: db, Log: log, GenID: node})
	escrow := escrowservice.NewService(escrowservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Config: cfg, Wallet: wallet,
		Payments: paymentrepo.Provide(),
	})
	chain := chainservice.NewService(chainservice.Params{DB: db, Log: log, GenID: node, Config: cfg})
	notifier := notificationservice.NewService(notificationservice.Params{DB: db, Log: log, GenID: node})
	settlement := settlementservice.NewService(settlementservice.Params{
		DB: db, Log: log, Clock: fake,
		Contracts: contracts, Bookings: bookings, Invoices: invoices,
		Escrow: escrow, Chain: chain, Notifier: notifier,
	})

	engine := NewEngine(Params{
		DB:           db,
		Log:          log,
		GenID:        node,
		Clock:        fake,
		PolicyHolder: &config.PenaltyPolicyHolder{},
		Records:      penaltyrepo.NewRepository(),
		Contracts:    contracts,
		Bookings:     bookings,
		Invoices:     invoices,
		Escrow:       escrow,
		Settlement:   settlement,
		Chain:        chain,
		Notifier:     notifier,
	})
	return &fixture{db: db, clock: fake, escrow: escrow, engine: engine}
}

func (f *fixture) seedContract(t *testing.T, status contractdomain.ContractStatus, tenantBalance, landlordBalance int64) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.db.Create(&contractdomain.Contract{
		ID:          contractID,
		Code:        "CT-100",
		PropertyID:  500,
		TenantID:    tenantID,
		LandlordID:  landlordID,
		Status:      status,
		MonthlyRent: 10_000_000,
		StartDate:   f.clock.Now().AddDate(0, -1, 0),
		CreatedAt:   f.clock.Now(),
		UpdatedAt:   f.clock.Now(),
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

func (f *fixture) seedInvoice(t *testing.T, id snowflake.ID, typ invoicedomain.InvoiceType, amount int64, overdueBy time.Duration) *invoicedomain.Invoice {
	t.Helper()
	invoice := &invoicedomain.Invoice{
		ID: id, ContractID: contractID, TenantID: tenantID,
		Type: typ, Status: invoicedomain.InvoiceStatusPending,
		Amount: amount, Period: "2026-02",
		DueAt:     f.clock.Now().Add(-overdueBy),
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}
	require.NoError(t, f.db.Create(invoice).Error)
	return invoice
}

func (f *fixture) tenantBalance(t *testing.T) int64 {
	t.Helper()
	account, err := f.escrow.AccountByContract(context.Background(), contractID)
	require.NoError(t, err)
	return account.TenantBalance
}

func (f *fixture) contractStatus(t *testing.T) contractdomain.ContractStatus {
	t.Helper()
	var contract contractdomain.Contract
	require.NoError(t, f.db.First(&contract, "id = ?", contractID).Error)
	return contract.Status
}

func (f *fixture) chainEventNames(t *testing.T) []string {
	t.Helper()
	var rows []chaindomain.OutboxRow
	require.NoError(t, f.db.Order("created_at asc, id asc").Find(&rows).Error)
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.EventName)
	}
	return names
}

func TestMonthlyOverdueAppliesDailyPenalty(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000_000, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeMonthlyRent, 10_000_000, 5*24*time.Hour)

	batch, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 1, batch.Applied)

	// 0.03% x 10,000,000 x 5 days.
	assert.Equal(t, int64(10_000_000-15_000), f.tenantBalance(t))

	records, err := f.engine.PenaltyHistoryForContract(context.Background(), contractID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, penaltydomain.PenaltyTypeMonthlyRent, records[0].PenaltyType)
	assert.Equal(t, 5, records[0].DaysPastDue)
	assert.Equal(t, int64(15_000), records[0].PenaltyAmount)
	assert.True(t, records[0].PenaltyRate.Equal(config.DefaultPenaltyPolicy().DailyRate))
	assert.Equal(t, penaltydomain.PenaltyStatusApplied, records[0].Status)

	// First penalty for the period is the distinguished overdue write.
	assert.Equal(t, []string{"contract.overdue"}, f.chainEventNames(t))
}

func TestMonthlyOverdueReRunSameDayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000_000, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeMonthlyRent, 10_000_000, 5*24*time.Hour)

	_, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)
	batch, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, batch.Applied)
	assert.Equal(t, 1, batch.Skipped)
	assert.Equal(t, int64(10_000_000-15_000), f.tenantBalance(t))

	records, err := f.engine.PenaltyHistoryForContract(context.Background(), contractID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestMonthlyOverdueNextDayAppliesAgain(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000_000, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeMonthlyRent, 10_000_000, 5*24*time.Hour)

	_, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	batch, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Applied)

	records, err := f.engine.PenaltyHistoryForContract(context.Background(), contractID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 6, records[1].DaysPastDue)
	assert.Equal(t, int64(18_000), records[1].PenaltyAmount)

	// Day two gets the lighter record write.
	assert.Equal(t, []string{"contract.overdue", "penalty.recorded"}, f.chainEventNames(t))
}

func TestOverdueWithinDueDayIsFree(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000_000, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeMonthlyRent, 10_000_000, 12*time.Hour)

	batch, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Skipped)
	assert.Equal(t, int64(10_000_000), f.tenantBalance(t))
}

func TestManualApplyRejectsClosedContract(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusTerminated, 0, 0)
	invoice := f.seedInvoice(t, 800, invoicedomain.InvoiceTypeMonthlyRent, 10_000_000, 5*24*time.Hour)

	_, err := f.engine.ApplyPaymentOverduePenalty(context.Background(), invoice.ID)
	assert.ErrorIs(t, err, penaltydomain.ErrContractNotPenal)

	records, err := f.engine.PenaltyHistoryForContract(context.Background(), contractID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTerminatesWhenBalanceCannotCoverPenalty(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeMonthlyRent, 100_000_000, 5*24*time.Hour)

	batch, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Terminated)
	assert.Equal(t, contractdomain.ContractStatusTerminated, f.contractStatus(t))

	records, err := f.engine.PenaltyHistoryForContract(context.Background(), contractID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFirstPaymentGraceVoidsDeal(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusPendingPayment, 5_000_000, 0)
	invoice := f.seedInvoice(t, 800, invoicedomain.InvoiceTypeFirstPayment, 3_000_000, 3*24*time.Hour)

	res, err := f.engine.ApplyPaymentOverduePenalty(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, penaltydomain.OutcomeCancelled, res.Outcome)
	assert.Equal(t, contractdomain.ContractStatusTerminated, f.contractStatus(t))

	// No penalty record: the deal is voided, not fined. The unpaid first
	// payment settles from the deposit per the waterfall.
	records, err := f.engine.PenaltyHistoryForContract(context.Background(), contractID)
	require.NoError(t, err)
	assert.Empty(t, records)

	var wallet walletdomain.Wallet
	require.NoError(t, f.db.Where("user_id = ?", tenantID).First(&wallet).Error)
	assert.Equal(t, int64(2_000_000), wallet.Balance)
}

func TestHandoverOverdueOneShotPenalty(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000_000, 8_000_000)

	paidAt := f.clock.Now().Add(-48 * time.Hour)
	require.NoError(t, f.db.Model(&contractdomain.Contract{}).
		Where("id = ?", contractID).
		Update("first_payment_paid_at", paidAt).Error)

	batch, err := f.engine.ProcessHandoverOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Processed)
	assert.Equal(t, 1, batch.Terminated)
	assert.Equal(t, contractdomain.ContractStatusTerminated, f.contractStatus(t))

	records, err := f.engine.PenaltyHistoryForContract(context.Background(), contractID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, penaltydomain.PenaltyTypeHandover, records[0].PenaltyType)
	assert.Equal(t, string(escrowdomain.PartyLandlord), records[0].Party)
	assert.Equal(t, int64(4_000_000), records[0].PenaltyAmount)

	// Tenant: full deposit back plus the handover penalty.
	var tenantWallet walletdomain.Wallet
	require.NoError(t, f.db.Where("user_id = ?", tenantID).First(&tenantWallet).Error)
	assert.Equal(t, int64(14_000_000), tenantWallet.Balance)

	// Landlord: what remains after the 50% deduction.
	var landlordWallet walletdomain.Wallet
	require.NoError(t, f.db.Where("user_id = ?", landlordID).First(&landlordWallet).Error)
	assert.Equal(t, int64(4_000_000), landlordWallet.Balance)

	// Terminated contracts drop out of the scan entirely.
	batch, err = f.engine.ProcessHandoverOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Processed)
}

func TestHandoverWithinWindowNotScanned(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000_000, 8_000_000)

	paidAt := f.clock.Now().Add(-12 * time.Hour)
	require.NoError(t, f.db.Model(&contractdomain.Contract{}).
		Where("id = ?", contractID).
		Update("first_payment_paid_at", paidAt).Error)

	batch, err := f.engine.ProcessHandoverOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Processed)
	assert.Equal(t, contractdomain.ContractStatusActive, f.contractStatus(t))
}

func TestCancelBookingForLateDeposit(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusPendingPayment, 0, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeDeposit, 5_000_000, 4*24*time.Hour)
	require.NoError(t, f.db.Create(&bookingdomain.Booking{
		ID: 700, ContractID: contractID, PropertyID: 500, TenantID: tenantID,
		Status:    bookingdomain.BookingStatusPending,
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}).Error)

	res, err := f.engine.CancelBookingForLateDeposit(context.Background(), 700)
	require.NoError(t, err)
	assert.Equal(t, penaltydomain.OutcomeCancelled, res.Outcome)
	assert.Equal(t, contractdomain.ContractStatusTerminated, f.contractStatus(t))

	var booking bookingdomain.Booking
	require.NoError(t, f.db.First(&booking, "id = ?", 700).Error)
	assert.Equal(t, bookingdomain.BookingStatusCancelled, booking.Status)

	_, err = f.engine.CancelBookingForLateDeposit(context.Background(), 700)
	assert.ErrorIs(t, err, penaltydomain.ErrBookingNotEligible)
}

func TestCancelBookingBeforeGraceRejected(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusPendingPayment, 0, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeDeposit, 5_000_000, 24*time.Hour)
	require.NoError(t, f.db.Create(&bookingdomain.Booking{
		ID: 700, ContractID: contractID, PropertyID: 500, TenantID: tenantID,
		Status:    bookingdomain.BookingStatusPending,
		CreatedAt: f.clock.Now(), UpdatedAt: f.clock.Now(),
	}).Error)

	_, err := f.engine.CancelBookingForLateDeposit(context.Background(), 700)
	assert.ErrorIs(t, err, penaltydomain.ErrInvoiceNotOverdue)
}

func TestTotalPenaltiesForTenant(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000_000, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeMonthlyRent, 10_000_000, 5*24*time.Hour)

	_, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)

	total, err := f.engine.TotalPenaltiesForTenant(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(15_000+18_000), total)
}

func TestResolveRecordStatus(t *testing.T) {
	f := newFixture(t)
	f.seedContract(t, contractdomain.ContractStatusActive, 10_000_000, 0)
	f.seedInvoice(t, 800, invoicedomain.InvoiceTypeMonthlyRent, 10_000_000, 5*24*time.Hour)

	_, err := f.engine.ProcessMonthlyRentOverdue(context.Background())
	require.NoError(t, err)
	records, err := f.engine.PenaltyHistoryForContract(context.Background(), contractID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	id := records[0].ID

	require.NoError(t, f.engine.ResolveRecordStatus(context.Background(), id, penaltydomain.PenaltyStatusDisputed))
	require.NoError(t, f.engine.ResolveRecordStatus(context.Background(), id, penaltydomain.PenaltyStatusWaived))

	// Waived is terminal.
	err = f.engine.ResolveRecordStatus(context.Background(), id, penaltydomain.PenaltyStatusApplied)
	assert.ErrorIs(t, err, penaltydomain.ErrInvalidTransition)

	// A waived penalty no longer counts toward the tenant total.
	total, err := f.engine.TotalPenaltiesForTenant(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Zero(t, total)
}
