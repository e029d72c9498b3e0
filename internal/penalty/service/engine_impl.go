package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/rentora/escrow/internal/booking/domain"
	chaindomain "github.com/rentora/escrow/internal/chain/domain"
	"github.com/rentora/escrow/internal/clock"
	"github.com/rentora/escrow/internal/config"
	contractdomain "github.com/rentora/escrow/internal/contract/domain"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	invoicedomain "github.com/rentora/escrow/internal/invoice/domain"
	notificationdomain "github.com/rentora/escrow/internal/notification/domain"
	obsmetrics "github.com/rentora/escrow/internal/observability/metrics"
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
	"github.com/rentora/escrow/internal/penalty/policy"
	settlementdomain "github.com/rentora/escrow/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	batchSize = 200

	periodFirstPayment = "first_payment"
	periodHandover     = "handover"

	initiatorEngine = "system:penalty_engine"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	PolicyHolder *config.PenaltyPolicyHolder
	Records      penaltydomain.Repository
	Contracts    contractdomain.Repository
	Bookings     bookingdomain.Repository
	Invoices     invoicedomain.Repository
	Escrow       escrowdomain.Service
	Settlement   settlementdomain.Service
	Chain        chaindomain.Recorder
	Notifier     notificationdomain.Notifier
}

type Engine struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policies   *config.PenaltyPolicyHolder
	records    penaltydomain.Repository
	contracts  contractdomain.Repository
	bookings   bookingdomain.Repository
	invoices   invoicedomain.Repository
	escrow     escrowdomain.Service
	settlement settlementdomain.Service
	chain      chaindomain.Recorder
	notifier   notificationdomain.Notifier
}

func NewEngine(p Params) penaltydomain.Engine {
	return &Engine{
		db:         p.DB,
		log:        p.Log.Named("penalty.engine"),
		genID:      p.GenID,
		clock:      p.Clock,
		policies:   p.PolicyHolder,
		records:    p.Records,
		contracts:  p.Contracts,
		bookings:   p.Bookings,
		invoices:   p.Invoices,
		escrow:     p.Escrow,
		settlement: p.Settlement,
		chain:      p.Chain,
		notifier:   p.Notifier,
	}
}

func (e *Engine) ProcessFirstPaymentOverdue(ctx context.Context) (penaltydomain.BatchResult, error) {
	return e.processOverdueInvoices(ctx, invoicedomain.InvoiceTypeFirstPayment)
}

func (e *Engine) ProcessMonthlyRentOverdue(ctx context.Context) (penaltydomain.BatchResult, error) {
	return e.processOverdueInvoices(ctx, invoicedomain.InvoiceTypeMonthlyRent)
}

// processOverdueInvoices is continue-on-error: each invoice's ledger write
// is independent and authoritative, so one failure never stops the batch.
func (e *Engine) processOverdueInvoices(ctx context.Context, invoiceType invoicedomain.InvoiceType) (penaltydomain.BatchResult, error) {
	var batch penaltydomain.BatchResult

	invoices, err := e.invoices.FindOverdue(ctx, e.db, invoiceType, e.clock.Now(), batchSize)
	if err != nil {
		return batch, fmt.Errorf("find overdue invoices: %w", err)
	}

	var errs []error
	for _, invoice := range invoices {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := e.applyInvoicePenalty(ctx, invoice)
		if err != nil {
			batch.Processed++
			batch.Failed++
			errs = append(errs, fmt.Errorf("invoice %d: %w", invoice.ID, err))
			e.log.Error("overdue invoice processing failed",
				zap.Int64("invoice_id", int64(invoice.ID)),
				zap.Int64("contract_id", int64(invoice.ContractID)),
				zap.Error(err),
			)
			continue
		}
		batch.Add(res)
	}
	return batch, errors.Join(errs...)
}

func (e *Engine) ApplyPaymentOverduePenalty(ctx context.Context, invoiceID snowflake.ID) (*penaltydomain.ApplyResult, error) {
	invoice, err := e.invoices.FindByID(ctx, e.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.InvoiceStatusPending {
		return nil, penaltydomain.ErrInvoiceNotOverdue
	}
	// The batch scans tolerate a closed contract as a skip; a manual call
	// against one is a caller error.
	contract, err := e.contracts.FindByID(ctx, e.db, invoice.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != contractdomain.ContractStatusActive &&
		contract.Status != contractdomain.ContractStatusPendingPayment {
		return nil, penaltydomain.ErrContractNotPenal
	}
	return e.applyInvoicePenalty(ctx, invoice)
}

func (e *Engine) applyInvoicePenalty(ctx context.Context, invoice *invoicedomain.Invoice) (*penaltydomain.ApplyResult, error) {
	pol := e.policies.Current()
	now := e.clock.Now()

	contract, err := e.contracts.FindByID(ctx, e.db, invoice.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != contractdomain.ContractStatusActive &&
		contract.Status != contractdomain.ContractStatusPendingPayment {
		return e.skipped(contract.ID, "contract not penalizable"), nil
	}

	days := policy.DaysPastDue(now, invoice.DueAt)
	if days == 0 {
		return e.skipped(contract.ID, "within due day"), nil
	}

	// An unpaid first payment past the grace window voids the deal instead
	// of fining it.
	if invoice.Type == invoicedomain.InvoiceTypeFirstPayment &&
		days >= pol.FirstPaymentGraceDays &&
		contract.FirstPaymentPaidAt == nil {
		return e.terminate(ctx, contract.ID, "first payment overdue", penaltydomain.OutcomeCancelled, false)
	}

	assessment := policy.Assess(pol, invoice.Amount, days)
	if assessment.Penalty == 0 {
		return e.skipped(contract.ID, "zero penalty"), nil
	}

	account, err := e.escrow.AccountByContract(ctx, contract.ID)
	if err != nil {
		return nil, err
	}

	if decision := policy.Decide(pol, invoice.Amount, assessment, account.TenantBalance); decision.Terminate {
		return e.terminate(ctx, contract.ID, decision.Reason, penaltydomain.OutcomeTerminated, false)
	}

	period := invoicePeriod(invoice)
	penaltyType := penaltyTypeFor(invoice.Type)
	reason := fmt.Sprintf("%s overdue by %d day(s)", invoice.Type, days)
	record := &penaltydomain.PenaltyRecord{
		ID:             e.genID.Generate(),
		ContractID:     contract.ID,
		TenantID:       contract.TenantID,
		Party:          string(escrowdomain.PartyTenant),
		PenaltyType:    penaltyType,
		Period:         period,
		AppliedOn:      now.Format("2006-01-02"),
		DaysPastDue:    days,
		OriginalAmount: invoice.Amount,
		PenaltyAmount:  assessment.Penalty,
		PenaltyRate:    pol.DailyRate,
		Reason:         reason,
		Status:         penaltydomain.PenaltyStatusApplied,
		AppliedBy:      initiatorEngine,
		AppliedAt:      now,
	}

	var (
		inserted        bool
		firstOccurrence bool
		credit          *escrowdomain.WalletCredit
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		priorCount, err := e.records.CountForPeriod(ctx, tx, contract.ID, penaltyType, period)
		if err != nil {
			return err
		}
		firstOccurrence = priorCount == 0

		inserted, err = e.records.InsertApplied(ctx, tx, record)
		if err != nil || !inserted {
			return err
		}

		_, credit, err = e.escrow.DeductTx(ctx, tx, escrowdomain.DeductRequest{
			ContractID: contract.ID,
			Party:      escrowdomain.PartyTenant,
			Amount:     assessment.Penalty,
			Reference:  penaltyReference(record),
			Reason:     reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return e.skipped(contract.ID, "penalty already applied today"), nil
	}

	obsmetrics.Ledger().IncPenaltyApplied(string(penaltyType))
	if credit != nil {
		e.escrow.DispatchWalletCredits(ctx, []escrowdomain.WalletCredit{*credit})
	}
	e.mirrorPenalty(ctx, contract, record, firstOccurrence)
	e.notifyPenalty(ctx, contract, record)

	e.log.Info("penalty applied",
		zap.Int64("contract_id", int64(contract.ID)),
		zap.String("type", string(penaltyType)),
		zap.String("period", period),
		zap.Int("days_past_due", days),
		zap.Int64("amount", assessment.Penalty),
	)
	return &penaltydomain.ApplyResult{
		Outcome:       penaltydomain.OutcomeApplied,
		ContractID:    contract.ID,
		PenaltyAmount: assessment.Penalty,
		Record:        record,
		Reason:        reason,
	}, nil
}

func (e *Engine) ProcessHandoverOverdue(ctx context.Context) (penaltydomain.BatchResult, error) {
	var batch penaltydomain.BatchResult
	pol := e.policies.Current()
	now := e.clock.Now()

	contracts, err := e.contracts.FindOverdueHandovers(ctx, e.db, now.Add(-pol.HandoverWindow), batchSize)
	if err != nil {
		return batch, fmt.Errorf("find overdue handovers: %w", err)
	}

	var errs []error
	for _, contract := range contracts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := e.applyHandoverPenalty(ctx, contract)
		if err != nil {
			batch.Processed++
			batch.Failed++
			errs = append(errs, fmt.Errorf("contract %d: %w", contract.ID, err))
			e.log.Error("handover processing failed",
				zap.Int64("contract_id", int64(contract.ID)),
				zap.Error(err),
			)
			continue
		}
		batch.Add(res)
	}
	return batch, errors.Join(errs...)
}

// applyHandoverPenalty deducts the one-shot landlord penalty and forces
// termination with a full tenant refund. The penalty record and the
// deduction commit together; termination runs as its own transaction and
// heals itself on the next scan if the process dies between the two.
func (e *Engine) applyHandoverPenalty(ctx context.Context, contract *contractdomain.Contract) (*penaltydomain.ApplyResult, error) {
	pol := e.policies.Current()
	now := e.clock.Now()

	account, err := e.escrow.AccountByContract(ctx, contract.ID)
	if err != nil {
		return nil, err
	}

	days := 0
	if contract.FirstPaymentPaidAt != nil {
		days = policy.DaysPastDue(now, contract.FirstPaymentPaidAt.Add(pol.HandoverWindow))
	}
	penalty := policy.HandoverPenalty(pol, account.LandlordBalance)

	record := &penaltydomain.PenaltyRecord{
		ID:             e.genID.Generate(),
		ContractID:     contract.ID,
		TenantID:       contract.TenantID,
		Party:          string(escrowdomain.PartyLandlord),
		PenaltyType:    penaltydomain.PenaltyTypeHandover,
		Period:         periodHandover,
		AppliedOn:      now.Format("2006-01-02"),
		DaysPastDue:    days,
		OriginalAmount: account.LandlordBalance,
		PenaltyAmount:  penalty,
		PenaltyRate:    pol.HandoverPenaltyRate,
		Reason:         "handover deadline missed",
		Status:         penaltydomain.PenaltyStatusApplied,
		AppliedBy:      initiatorEngine,
		AppliedAt:      now,
	}

	var (
		inserted bool
		credit   *escrowdomain.WalletCredit
	)
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = e.records.InsertApplied(ctx, tx, record)
		if err != nil || !inserted {
			return err
		}
		if penalty == 0 {
			return nil
		}
		_, credit, err = e.escrow.DeductTx(ctx, tx, escrowdomain.DeductRequest{
			ContractID: contract.ID,
			Party:      escrowdomain.PartyLandlord,
			Amount:     penalty,
			Reference:  penaltyReference(record),
			Reason:     record.Reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if inserted {
		obsmetrics.Ledger().IncPenaltyApplied(string(penaltydomain.PenaltyTypeHandover))
		if credit != nil {
			e.escrow.DispatchWalletCredits(ctx, []escrowdomain.WalletCredit{*credit})
		}
		e.mirrorPenalty(ctx, contract, record, false)
		e.notifyPenalty(ctx, contract, record)
	}

	// Forced settlement. Unpaid invoices are waived: the landlord is at
	// fault, so the tenant deposit comes back in full.
	res, err := e.terminate(ctx, contract.ID, "handover deadline missed", penaltydomain.OutcomeTerminated, true)
	if err != nil {
		return nil, err
	}
	res.PenaltyAmount = penalty
	if inserted {
		res.Record = record
	}
	return res, nil
}

func (e *Engine) CancelBookingForLateDeposit(ctx context.Context, bookingID snowflake.ID) (*penaltydomain.ApplyResult, error) {
	pol := e.policies.Current()
	now := e.clock.Now()

	booking, err := e.bookings.FindByID(ctx, e.db, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == bookingdomain.BookingStatusCancelled ||
		booking.Status == bookingdomain.BookingStatusCompleted {
		return nil, penaltydomain.ErrBookingNotEligible
	}

	deposit, err := e.invoices.FindPendingByContract(ctx, e.db, booking.ContractID, invoicedomain.InvoiceTypeDeposit)
	if err != nil {
		return nil, err
	}
	if deposit == nil {
		return nil, penaltydomain.ErrBookingNotEligible
	}
	if policy.DaysPastDue(now, deposit.DueAt) < pol.FirstPaymentGraceDays {
		return nil, penaltydomain.ErrInvoiceNotOverdue
	}

	contract, err := e.contracts.FindByID(ctx, e.db, booking.ContractID)
	if err != nil {
		return nil, err
	}

	// Nothing was escrowed, so the deal is voided without moving money.
	reason := "deposit not paid within grace window"
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := e.bookings.CancelByContract(ctx, tx, contract.ID, reason); err != nil {
			return err
		}
		if _, err := e.invoices.CancelPendingByContract(ctx, tx, contract.ID); err != nil {
			return err
		}
		if contract.Status == contractdomain.ContractStatusTerminated {
			return nil
		}
		return e.contracts.MarkTerminated(ctx, tx, contract.ID, reason, now)
	})
	if err != nil {
		return nil, err
	}

	if err := e.chain.TerminateContract(ctx, chaindomain.ContractTerminated{
		ContractCode: contract.Code,
		Reason:       reason,
	}); err != nil {
		e.log.Warn("chain terminate mirror failed", zap.Error(err))
	}
	e.notify(ctx, booking.TenantID, notificationdomain.NotificationTypeBookingCancelled,
		"Booking cancelled",
		fmt.Sprintf("Your booking for contract %s was cancelled: %s.", contract.Code, reason),
		map[string]any{"contractId": contract.ID.String(), "bookingId": booking.ID.String()},
	)

	e.log.Info("booking cancelled for late deposit",
		zap.Int64("booking_id", int64(booking.ID)),
		zap.Int64("contract_id", int64(contract.ID)),
	)
	return &penaltydomain.ApplyResult{
		Outcome:    penaltydomain.OutcomeCancelled,
		ContractID: contract.ID,
		Reason:     reason,
	}, nil
}

func (e *Engine) PenaltyHistoryForContract(ctx context.Context, contractID snowflake.ID) ([]*penaltydomain.PenaltyRecord, error) {
	return e.records.FindByContract(ctx, e.db, contractID)
}

func (e *Engine) TotalPenaltiesForTenant(ctx context.Context, tenantID snowflake.ID) (int64, error) {
	return e.records.SumAppliedForTenant(ctx, e.db, tenantID)
}

func (e *Engine) ResolveRecordStatus(ctx context.Context, recordID snowflake.ID, to penaltydomain.PenaltyStatus) error {
	record, err := e.records.FindByID(ctx, e.db, recordID)
	if err != nil {
		return err
	}
	return e.records.UpdateStatus(ctx, e.db, recordID, record.Status, to)
}

func (e *Engine) terminate(ctx context.Context, contractID snowflake.ID, reason string, outcome penaltydomain.Outcome, waiveInvoices bool) (*penaltydomain.ApplyResult, error) {
	_, err := e.settlement.Terminate(ctx, settlementdomain.TerminationRequest{
		ContractID:          contractID,
		Reason:              reason,
		Initiator:           initiatorEngine,
		WaiveUnpaidInvoices: waiveInvoices,
	})
	if errors.Is(err, settlementdomain.ErrAlreadyTerminated) {
		return e.skipped(contractID, "already terminated"), nil
	}
	if err != nil {
		return nil, err
	}
	return &penaltydomain.ApplyResult{
		Outcome:    outcome,
		ContractID: contractID,
		Reason:     reason,
	}, nil
}

// mirrorPenalty performs the blockchain write. The first penalty of a
// period is the distinguished mark-overdue-and-apply write; later days get
// the lighter record write. Both are best-effort.
func (e *Engine) mirrorPenalty(ctx context.Context, contract *contractdomain.Contract, record *penaltydomain.PenaltyRecord, firstOccurrence bool) {
	var err error
	if firstOccurrence {
		err = e.chain.MarkOverdue(ctx, chaindomain.ContractOverdue{
			ContractCode: contract.Code,
			Period:       record.Period,
			Party:        record.Party,
			Amount:       record.PenaltyAmount,
			Reason:       record.Reason,
		})
	} else {
		err = e.chain.RecordPenalty(ctx, chaindomain.PenaltyRecorded{
			ContractCode: contract.Code,
			Party:        record.Party,
			Amount:       record.PenaltyAmount,
			Reason:       record.Reason,
		})
	}
	if err != nil {
		e.log.Warn("chain penalty mirror failed",
			zap.Int64("contract_id", int64(contract.ID)),
			zap.Error(err),
		)
	}
}

func (e *Engine) notifyPenalty(ctx context.Context, contract *contractdomain.Contract, record *penaltydomain.PenaltyRecord) {
	metadata := map[string]any{
		"contractId": contract.ID.String(),
		"recordId":   record.ID.String(),
		"amount":     record.PenaltyAmount,
		"type":       string(record.PenaltyType),
	}
	content := fmt.Sprintf("A penalty of %d was applied on contract %s: %s.",
		record.PenaltyAmount, contract.Code, record.Reason)

	e.notify(ctx, contract.TenantID, notificationdomain.NotificationTypePenaltyApplied, "Penalty applied", content, metadata)
	e.notify(ctx, contract.LandlordID, notificationdomain.NotificationTypePenaltyApplied, "Penalty applied", content, metadata)
}

func (e *Engine) notify(ctx context.Context, userID snowflake.ID, typ notificationdomain.NotificationType, title, content string, metadata map[string]any) {
	err := e.notifier.Create(ctx, notificationdomain.CreateRequest{
		UserID:   userID,
		Type:     typ,
		Title:    title,
		Content:  content,
		Metadata: metadata,
	})
	if err != nil {
		obsmetrics.Ledger().IncMirrorFailure("notification")
		e.log.Warn("notification failed",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err),
		)
	}
}

func (e *Engine) skipped(contractID snowflake.ID, reason string) *penaltydomain.ApplyResult {
	return &penaltydomain.ApplyResult{
		Outcome:    penaltydomain.OutcomeSkipped,
		ContractID: contractID,
		Reason:     reason,
	}
}

func invoicePeriod(invoice *invoicedomain.Invoice) string {
	if invoice.Type == invoicedomain.InvoiceTypeFirstPayment {
		return periodFirstPayment
	}
	if invoice.Period != "" {
		return invoice.Period
	}
	return invoice.DueAt.UTC().Format("2006-01")
}

func penaltyTypeFor(invoiceType invoicedomain.InvoiceType) penaltydomain.PenaltyType {
	if invoiceType == invoicedomain.InvoiceTypeFirstPayment {
		return penaltydomain.PenaltyTypeFirstPayment
	}
	return penaltydomain.PenaltyTypeMonthlyRent
}

func penaltyReference(record *penaltydomain.PenaltyRecord) string {
	return fmt.Sprintf("penalty:%d:%s:%s:%s",
		record.ContractID, record.PenaltyType, record.Period, record.AppliedOn)
}
