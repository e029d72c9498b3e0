package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/rentora/escrow/internal/clock"
	"github.com/rentora/escrow/internal/config"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	paymentdomain "github.com/rentora/escrow/internal/payment/domain"
	paymentrepo "github.com/rentora/escrow/internal/payment/repository"
	walletdomain "github.com/rentora/escrow/internal/wallet/domain"
	walletservice "github.com/rentora/escrow/internal/wallet/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	svc    escrowdomain.Service
	wallet walletdomain.Service
	clock  *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&escrowdomain.Account{},
		&escrowdomain.Transaction{},
		&paymentdomain.Payment{},
		&walletdomain.Wallet{},
		&walletdomain.WalletTransaction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	wallet := walletservice.NewService(walletservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
	})
	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Config:   config.Config{Wallet: config.WalletConfig{CreditTimeout: 5 * time.Second}},
		Wallet:   wallet,
		Payments: paymentrepo.Provide(),
	})
	return &fixture{db: db, svc: svc, wallet: wallet, clock: fake}
}

func (f *fixture) openAccount(t *testing.T) *escrowdomain.Account {
	t.Helper()
	account, err := f.svc.EnsureAccount(context.Background(), escrowdomain.EnsureAccountRequest{
		ContractID: 100,
		TenantID:   1,
		LandlordID: 2,
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) seedPayment(t *testing.T, id snowflake.ID, payer snowflake.ID, amount int64, kind paymentdomain.PaymentKind, status paymentdomain.PaymentStatus) {
	t.Helper()
	paid := f.clock.Now()
	require.NoError(t, f.db.Create(&paymentdomain.Payment{
		ID:         id,
		ContractID: 100,
		PayerID:    payer,
		Kind:       kind,
		Status:     status,
		Amount:     amount,
		Currency:   "VND",
		PaidAt:     &paid,
		CreatedAt:  paid,
		UpdatedAt:  paid,
	}).Error)
}

func (f *fixture) deposit(t *testing.T, party escrowdomain.Party, amount int64, paymentID snowflake.ID) {
	t.Helper()
	payer := snowflake.ID(1)
	if party == escrowdomain.PartyLandlord {
		payer = 2
	}
	f.seedPayment(t, paymentID, payer, amount, paymentdomain.PaymentKindDeposit, paymentdomain.PaymentStatusCompleted)
	_, err := f.svc.CreditDeposit(context.Background(), escrowdomain.DepositRequest{
		ContractID: 100,
		Party:      party,
		PaymentID:  paymentID,
	})
	require.NoError(t, err)
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

func TestEnsureAccountIdempotent(t *testing.T) {
	f := newFixture(t)

	first := f.openAccount(t)
	second := f.openAccount(t)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, escrowdomain.AccountStatusOpen, second.Status)
	assert.Zero(t, second.TenantBalance)
	assert.Zero(t, second.LandlordBalance)
}

func TestCreditDepositReplayIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)
	f.seedPayment(t, 777, 1, 10_000_000, paymentdomain.PaymentKindDeposit, paymentdomain.PaymentStatusCompleted)

	first, err := f.svc.CreditDeposit(context.Background(), escrowdomain.DepositRequest{
		ContractID: 100,
		Party:      escrowdomain.PartyTenant,
		PaymentID:  777,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), first.BalanceAfter)

	replay, err := f.svc.CreditDeposit(context.Background(), escrowdomain.DepositRequest{
		ContractID: 100,
		Party:      escrowdomain.PartyTenant,
		PaymentID:  777,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)

	account, err := f.svc.AccountByContract(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), account.TenantBalance)
}

func TestCreditDepositRequiresCompletedDepositPayment(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)
	f.seedPayment(t, 801, 1, 10_000_000, paymentdomain.PaymentKindDeposit, paymentdomain.PaymentStatusPending)
	f.seedPayment(t, 802, 1, 10_000_000, paymentdomain.PaymentKindRent, paymentdomain.PaymentStatusCompleted)

	cases := []struct {
		name      string
		paymentID snowflake.ID
	}{
		{"pending payment", 801},
		{"rent payment", 802},
		{"unknown payment", 999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreditDeposit(context.Background(), escrowdomain.DepositRequest{
				ContractID: 100,
				Party:      escrowdomain.PartyTenant,
				PaymentID:  tc.paymentID,
			})
			assert.ErrorIs(t, err, escrowdomain.ErrInvalidState)
		})
	}

	// Nothing moved and nothing was logged.
	rows, err := f.svc.Transactions(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, rows)

	account, err := f.svc.AccountByContract(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, account.TenantBalance)
}

func TestDeductCreditsCounterpartyWallet(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)
	f.deposit(t, escrowdomain.PartyTenant, 10_000_000, 777)

	entry, err := f.svc.Deduct(context.Background(), escrowdomain.DeductRequest{
		ContractID: 100,
		Party:      escrowdomain.PartyTenant,
		Amount:     15_000,
		Reference:  "penalty:1",
		Reason:     "late rent",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9_985_000), entry.BalanceAfter)
	assert.Equal(t, escrowdomain.DirectionDebit, entry.Direction)

	account, err := f.svc.AccountByContract(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(9_985_000), account.TenantBalance)

	// The deducted amount lands in the landlord's wallet.
	assert.Equal(t, int64(15_000), f.walletBalance(t, 2))
}

func TestDeductReplayFailsWithoutMovingMoney(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)
	f.deposit(t, escrowdomain.PartyTenant, 10_000_000, 777)

	req := escrowdomain.DeductRequest{
		ContractID: 100,
		Party:      escrowdomain.PartyTenant,
		Amount:     15_000,
		Reference:  "penalty:1",
	}
	_, err := f.svc.Deduct(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.Deduct(context.Background(), req)
	assert.ErrorIs(t, err, escrowdomain.ErrAlreadyApplied)

	account, err := f.svc.AccountByContract(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(9_985_000), account.TenantBalance)
	assert.Equal(t, int64(15_000), f.walletBalance(t, 2))
}

func TestDeductInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)
	f.deposit(t, escrowdomain.PartyTenant, 1_000, 777)

	_, err := f.svc.Deduct(context.Background(), escrowdomain.DeductRequest{
		ContractID: 100,
		Party:      escrowdomain.PartyTenant,
		Amount:     2_000,
		Reference:  "penalty:1",
	})
	assert.ErrorIs(t, err, escrowdomain.ErrInsufficientBalance)

	// The rolled-back attempt leaves no ledger entry behind.
	rows, err := f.svc.Transactions(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	account, err := f.svc.AccountByContract(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), account.TenantBalance)
}

func TestRefundPaysOwnerWallet(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)
	f.deposit(t, escrowdomain.PartyLandlord, 8_000_000, 778)

	_, err := f.svc.Refund(context.Background(), escrowdomain.RefundRequest{
		ContractID: 100,
		Party:      escrowdomain.PartyLandlord,
		Amount:     8_000_000,
		Reference:  "settlement:100:landlord",
		Reason:     "termination refund",
	})
	require.NoError(t, err)

	account, err := f.svc.AccountByContract(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, account.LandlordBalance)
	assert.Equal(t, int64(8_000_000), f.walletBalance(t, 2))
}

func TestClosedAccountRejectsOperations(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)
	f.deposit(t, escrowdomain.PartyTenant, 10_000_000, 777)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.CloseTx(context.Background(), tx, 100)
	})
	require.NoError(t, err)

	_, err = f.svc.Deduct(context.Background(), escrowdomain.DeductRequest{
		ContractID: 100,
		Party:      escrowdomain.PartyTenant,
		Amount:     1,
		Reference:  "penalty:late",
	})
	assert.ErrorIs(t, err, escrowdomain.ErrInvalidState)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		return f.svc.CloseTx(context.Background(), tx, 100)
	})
	assert.ErrorIs(t, err, escrowdomain.ErrInvalidState)
}

func TestTransactionLogReconcilesWithBalance(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)
	f.deposit(t, escrowdomain.PartyTenant, 10_000_000, 777)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Deduct(context.Background(), escrowdomain.DeductRequest{
			ContractID: 100,
			Party:      escrowdomain.PartyTenant,
			Amount:     3_000,
			Reference:  fmt.Sprintf("penalty:%d", i),
		})
		require.NoError(t, err)
	}

	rows, err := f.svc.Transactions(context.Background(), 100)
	require.NoError(t, err)

	var sum int64
	for _, row := range rows {
		if row.Party != escrowdomain.PartyTenant {
			continue
		}
		if row.Direction == escrowdomain.DirectionCredit {
			sum += row.Amount
		} else {
			sum -= row.Amount
		}
	}

	account, err := f.svc.AccountByContract(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, account.TenantBalance, sum)
	assert.Equal(t, int64(9_985_000), account.TenantBalance)
}

func TestDeductRejectsInvalidAmount(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t)

	_, err := f.svc.Deduct(context.Background(), escrowdomain.DeductRequest{
		ContractID: 100,
		Party:      escrowdomain.PartyTenant,
		Amount:     0,
		Reference:  "penalty:zero",
	})
	assert.ErrorIs(t, err, escrowdomain.ErrInvalidAmount)
}
