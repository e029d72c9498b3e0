package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rentora/escrow/internal/clock"
	"github.com/rentora/escrow/internal/config"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	obsmetrics "github.com/rentora/escrow/internal/observability/metrics"
	paymentdomain "github.com/rentora/escrow/internal/payment/domain"
	walletdomain "github.com/rentora/escrow/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Wallet   walletdomain.Service
	Payments paymentdomain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	wallet   walletdomain.Service
	payments paymentdomain.Repository
}

func NewService(p Params) escrowdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("escrow.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config,
		wallet:   p.Wallet,
		payments: p.Payments,
	}
}

func (s *Service) EnsureAccount(ctx context.Context, req escrowdomain.EnsureAccountRequest) (*escrowdomain.Account, error) {
	if req.ContractID == 0 || req.TenantID == 0 || req.LandlordID == 0 {
		return nil, escrowdomain.ErrInvalidState
	}

	currency := req.Currency
	if currency == "" {
		currency = "VND"
	}
	now := s.clock.Now()

	result := s.db.WithContext(ctx).Exec(`
		INSERT INTO escrow_accounts (id, contract_id, tenant_id, landlord_id, tenant_balance, landlord_balance, currency, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, ?, ?, ?, ?)
		ON CONFLICT (contract_id) DO NOTHING
	`, s.genID.Generate(), req.ContractID, req.TenantID, req.LandlordID, currency, escrowdomain.AccountStatusOpen, now, now)
	if result.Error != nil {
		return nil, fmt.Errorf("ensure escrow account: %w", result.Error)
	}

	return s.AccountByContract(ctx, req.ContractID)
}

func (s *Service) CreditDeposit(ctx context.Context, req escrowdomain.DepositRequest) (*escrowdomain.Transaction, error) {
	payment, err := s.payments.FindByID(ctx, s.db, req.PaymentID)
	if errors.Is(err, paymentdomain.ErrPaymentNotFound) {
		return nil, escrowdomain.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("load deposit payment: %w", err)
	}
	// Only money that actually arrived enters the ledger: the payment must
	// be a completed deposit on this contract.
	if payment.Kind != paymentdomain.PaymentKindDeposit ||
		payment.Status != paymentdomain.PaymentStatusCompleted ||
		payment.ContractID != req.ContractID {
		return nil, escrowdomain.ErrInvalidState
	}
	if payment.Amount <= 0 {
		return nil, escrowdomain.ErrInvalidAmount
	}

	reference := fmt.Sprintf("payment:%d", req.PaymentID)
	var entry *escrowdomain.Transaction

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountForUpdate(ctx, tx, req.ContractID)
		if err != nil {
			return err
		}

		inserted, txRow, err := s.insertEntry(ctx, tx, account, entrySpec{
			party:     req.Party,
			direction: escrowdomain.DirectionCredit,
			txType:    escrowdomain.TxTypeDeposit,
			amount:    payment.Amount,
			reference: reference,
			reason:    "deposit payment",
		})
		if err != nil {
			return err
		}
		if !inserted {
			// Replayed payment. Surface the original entry unchanged.
			entry = txRow
			return nil
		}

		if err := s.applyBalance(ctx, tx, account, req.Party, payment.Amount, txRow); err != nil {
			return err
		}
		entry = txRow
		return nil
	})
	if err != nil {
		obsmetrics.Ledger().IncOperation("deposit", "error")
		return nil, err
	}

	obsmetrics.Ledger().IncOperation("deposit", "ok")
	s.log.Info("escrow deposit credited",
		zap.Int64("contract_id", int64(req.ContractID)),
		zap.String("party", string(req.Party)),
		zap.Int64("amount", payment.Amount),
	)
	return entry, nil
}

func (s *Service) Deduct(ctx context.Context, req escrowdomain.DeductRequest) (*escrowdomain.Transaction, error) {
	var (
		entry  *escrowdomain.Transaction
		credit *escrowdomain.WalletCredit
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, credit, err = s.DeductTx(ctx, tx, req)
		return err
	})
	if err != nil {
		obsmetrics.Ledger().IncOperation("deduct", "error")
		return nil, err
	}

	obsmetrics.Ledger().IncOperation("deduct", "ok")
	if credit != nil {
		s.DispatchWalletCredits(ctx, []escrowdomain.WalletCredit{*credit})
	}
	return entry, nil
}

func (s *Service) Refund(ctx context.Context, req escrowdomain.RefundRequest) (*escrowdomain.Transaction, error) {
	var (
		entry  *escrowdomain.Transaction
		credit *escrowdomain.WalletCredit
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, credit, err = s.RefundTx(ctx, tx, req)
		return err
	})
	if err != nil {
		obsmetrics.Ledger().IncOperation("refund", "error")
		return nil, err
	}

	obsmetrics.Ledger().IncOperation("refund", "ok")
	if credit != nil {
		s.DispatchWalletCredits(ctx, []escrowdomain.WalletCredit{*credit})
	}
	return entry, nil
}

// DeductTx debits req.Party inside the caller's transaction. The returned
// wallet credit pays the counterparty and must be dispatched only after the
// transaction commits.
func (s *Service) DeductTx(ctx context.Context, tx *gorm.DB, req escrowdomain.DeductRequest) (*escrowdomain.Transaction, *escrowdomain.WalletCredit, error) {
	if req.Amount <= 0 {
		return nil, nil, escrowdomain.ErrInvalidAmount
	}
	if req.Reference == "" {
		return nil, nil, escrowdomain.ErrInvalidState
	}

	account, err := s.accountForUpdate(ctx, tx, req.ContractID)
	if err != nil {
		return nil, nil, err
	}

	inserted, txRow, err := s.insertEntry(ctx, tx, account, entrySpec{
		party:     req.Party,
		direction: escrowdomain.DirectionDebit,
		txType:    escrowdomain.TxTypeDeduction,
		amount:    req.Amount,
		reference: req.Reference,
		reason:    req.Reason,
	})
	if err != nil {
		return nil, nil, err
	}
	if !inserted {
		return nil, nil, escrowdomain.ErrAlreadyApplied
	}

	if err := s.applyBalance(ctx, tx, account, req.Party, -req.Amount, txRow); err != nil {
		return nil, nil, err
	}

	credit := &escrowdomain.WalletCredit{
		UserID:      account.Counterparty(req.Party),
		Amount:      req.Amount,
		Kind:        walletdomain.CreditKindEscrowDeduction,
		ReferenceID: req.Reference,
		Note:        req.Reason,
	}
	return txRow, credit, nil
}

// RefundTx debits req.Party inside the caller's transaction, paying the
// balance back to its own owner.
func (s *Service) RefundTx(ctx context.Context, tx *gorm.DB, req escrowdomain.RefundRequest) (*escrowdomain.Transaction, *escrowdomain.WalletCredit, error) {
	if req.Amount <= 0 {
		return nil, nil, escrowdomain.ErrInvalidAmount
	}
	if req.Reference == "" {
		return nil, nil, escrowdomain.ErrInvalidState
	}

	account, err := s.accountForUpdate(ctx, tx, req.ContractID)
	if err != nil {
		return nil, nil, err
	}

	inserted, txRow, err := s.insertEntry(ctx, tx, account, entrySpec{
		party:     req.Party,
		direction: escrowdomain.DirectionDebit,
		txType:    escrowdomain.TxTypeRefund,
		amount:    req.Amount,
		reference: req.Reference,
		reason:    req.Reason,
	})
	if err != nil {
		return nil, nil, err
	}
	if !inserted {
		return nil, nil, escrowdomain.ErrAlreadyApplied
	}

	if err := s.applyBalance(ctx, tx, account, req.Party, -req.Amount, txRow); err != nil {
		return nil, nil, err
	}

	credit := &escrowdomain.WalletCredit{
		UserID:      account.Owner(req.Party),
		Amount:      req.Amount,
		Kind:        walletdomain.CreditKindEscrowRefund,
		ReferenceID: req.Reference,
		Note:        req.Reason,
	}
	return txRow, credit, nil
}

// CloseTx marks the contract's account CLOSED. Closing twice is an
// ErrInvalidState; further balance operations are rejected by the status
// guard on every update.
func (s *Service) CloseTx(ctx context.Context, tx *gorm.DB, contractID snowflake.ID) error {
	result := tx.WithContext(ctx).Exec(`
		UPDATE escrow_accounts SET status = ?, updated_at = ?
		WHERE contract_id = ? AND status = ?
	`, escrowdomain.AccountStatusClosed, s.clock.Now(), contractID, escrowdomain.AccountStatusOpen)
	if result.Error != nil {
		return fmt.Errorf("close escrow account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).
			Model(&escrowdomain.Account{}).
			Where("contract_id = ?", contractID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return escrowdomain.ErrAccountNotFound
		}
		return escrowdomain.ErrInvalidState
	}
	return nil
}

// DispatchWalletCredits hands committed ledger outcomes to the wallet.
// Failures are logged and counted, never returned: the ledger is the
// source of truth and the wallet is reconciled out of band.
func (s *Service) DispatchWalletCredits(ctx context.Context, credits []escrowdomain.WalletCredit) {
	timeout := s.cfg.Wallet.CreditTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for _, c := range credits {
		creditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		err := s.wallet.Credit(creditCtx, walletdomain.CreditRequest{
			UserID:      c.UserID,
			Amount:      c.Amount,
			Kind:        c.Kind,
			ReferenceID: c.ReferenceID,
			Note:        c.Note,
		})
		cancel()
		if err != nil {
			obsmetrics.Ledger().IncMirrorFailure("wallet")
			s.log.Warn("wallet credit failed",
				zap.Int64("user_id", int64(c.UserID)),
				zap.Int64("amount", c.Amount),
				zap.String("reference", c.ReferenceID),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) AccountByContract(ctx context.Context, contractID snowflake.ID) (*escrowdomain.Account, error) {
	var account escrowdomain.Account
	err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, escrowdomain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Service) Transactions(ctx context.Context, contractID snowflake.ID) ([]escrowdomain.Transaction, error) {
	var rows []escrowdomain.Transaction
	err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type entrySpec struct {
	party     escrowdomain.Party
	direction escrowdomain.Direction
	txType    escrowdomain.TransactionType
	amount    int64
	reference string
	reason    string
}

func (s *Service) accountForUpdate(ctx context.Context, tx *gorm.DB, contractID snowflake.ID) (*escrowdomain.Account, error) {
	var account escrowdomain.Account
	err := tx.WithContext(ctx).
		Where("contract_id = ?", contractID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, escrowdomain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if account.Status != escrowdomain.AccountStatusOpen {
		return nil, escrowdomain.ErrInvalidState
	}
	return &account, nil
}

// insertEntry writes the transaction row, which doubles as the idempotency
// gate: the unique reference index turns a replay into a no-op insert. On
// conflict it returns inserted=false along with the original row.
func (s *Service) insertEntry(ctx context.Context, tx *gorm.DB, account *escrowdomain.Account, spec entrySpec) (bool, *escrowdomain.Transaction, error) {
	row := &escrowdomain.Transaction{
		ID:         s.genID.Generate(),
		AccountID:  account.ID,
		ContractID: account.ContractID,
		Party:      spec.party,
		Direction:  spec.direction,
		Type:       spec.txType,
		Amount:     spec.amount,
		Reference:  spec.reference,
		Reason:     spec.reason,
		CreatedAt:  s.clock.Now(),
	}

	result := tx.WithContext(ctx).Exec(`
		INSERT INTO escrow_transactions (id, account_id, contract_id, party, direction, type, amount, balance_after, reference, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (reference) DO NOTHING
	`, row.ID, row.AccountID, row.ContractID, row.Party, row.Direction, row.Type, row.Amount, row.Reference, row.Reason, row.CreatedAt)
	if result.Error != nil {
		return false, nil, fmt.Errorf("insert escrow transaction: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var existing escrowdomain.Transaction
		if err := tx.WithContext(ctx).
			Where("reference = ?", spec.reference).
			First(&existing).Error; err != nil {
			return false, nil, err
		}
		return false, &existing, nil
	}
	return true, row, nil
}

// applyBalance moves the party balance by delta with the non-negative
// guard in the WHERE clause, so concurrent writers cannot overdraw even
// without row locks. The matching transaction row gets its balance_after
// backfilled from the post-update account.
func (s *Service) applyBalance(ctx context.Context, tx *gorm.DB, account *escrowdomain.Account, party escrowdomain.Party, delta int64, row *escrowdomain.Transaction) error {
	column := "tenant_balance"
	if party == escrowdomain.PartyLandlord {
		column = "landlord_balance"
	}

	query := fmt.Sprintf(`
		UPDATE escrow_accounts SET %s = %s + ?, updated_at = ?
		WHERE contract_id = ? AND status = ? AND %s + ? >= 0
	`, column, column, column)
	result := tx.WithContext(ctx).Exec(query,
		delta, s.clock.Now(), account.ContractID, escrowdomain.AccountStatusOpen, delta)
	if result.Error != nil {
		return fmt.Errorf("update escrow balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return escrowdomain.ErrInsufficientBalance
	}

	fresh, err := s.accountForUpdate(ctx, tx, account.ContractID)
	if err != nil {
		return err
	}
	row.BalanceAfter = fresh.Balance(party)
	return tx.WithContext(ctx).
		Model(&escrowdomain.Transaction{}).
		Where("id = ?", row.ID).
		Update("balance_after", row.BalanceAfter).Error
}
