package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/rentora/escrow/internal/booking/domain"
	chaindomain "github.com/rentora/escrow/internal/chain/domain"
	"github.com/rentora/escrow/internal/clock"
	contractdomain "github.com/rentora/escrow/internal/contract/domain"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	invoicedomain "github.com/rentora/escrow/internal/invoice/domain"
	notificationdomain "github.com/rentora/escrow/internal/notification/domain"
	obsmetrics "github.com/rentora/escrow/internal/observability/metrics"
	settlementdomain "github.com/rentora/escrow/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Contracts contractdomain.Repository
	Bookings  bookingdomain.Repository
	Invoices  invoicedomain.Repository
	Escrow    escrowdomain.Service
	Chain     chaindomain.Recorder
	Notifier  notificationdomain.Notifier
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	contracts contractdomain.Repository
	bookings  bookingdomain.Repository
	invoices  invoicedomain.Repository
	escrow    escrowdomain.Service
	chain     chaindomain.Recorder
	notifier  notificationdomain.Notifier
}

func NewService(p Params) settlementdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("settlement.service"),
		clock:     p.Clock,
		contracts: p.Contracts,
		bookings:  p.Bookings,
		invoices:  p.Invoices,
		escrow:    p.Escrow,
		chain:     p.Chain,
		notifier:  p.Notifier,
	}
}

// Terminate settles the contract: refund waterfall, status transitions and
// both escrow refunds in one transaction. A refund failure aborts the whole
// settlement so contract status and ledger never diverge.
func (s *Service) Terminate(ctx context.Context, req settlementdomain.TerminationRequest) (*settlementdomain.SettlementResult, error) {
	contract, err := s.contracts.FindByID(ctx, s.db, req.ContractID)
	if err != nil {
		return nil, err
	}
	if contract.Status == contractdomain.ContractStatusTerminated ||
		contract.Status == contractdomain.ContractStatusCompleted {
		return nil, settlementdomain.ErrAlreadyTerminated
	}
	if contract.TenantID == 0 || contract.LandlordID == 0 {
		return nil, settlementdomain.ErrMissingParty
	}

	// A contract voided before any payment has no escrow account; settle
	// with zero balances and skip the ledger entirely.
	account, err := s.escrow.AccountByContract(ctx, contract.ID)
	if err != nil && !errors.Is(err, escrowdomain.ErrAccountNotFound) {
		return nil, err
	}

	var unpaidTotal int64
	if !req.WaiveUnpaidInvoices {
		unpaidTotal, err = s.invoices.SumPendingByContract(ctx, s.db, contract.ID)
		if err != nil {
			return nil, err
		}
	}

	var tenantBalance, landlordBalance int64
	if account != nil {
		tenantBalance = account.TenantBalance
		landlordBalance = account.LandlordBalance
	}
	split := settlementdomain.Waterfall(tenantBalance, landlordBalance, unpaidTotal)

	now := s.clock.Now()
	result := &settlementdomain.SettlementResult{
		ContractID:   contract.ID,
		ContractCode: contract.Code,
		Reason:       req.Reason,
		Initiator:    req.Initiator,
		UnpaidTotal:  unpaidTotal,
		Split:        split,
		TerminatedAt: now,
	}

	var credits []escrowdomain.WalletCredit
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.contracts.MarkTerminated(ctx, tx, contract.ID, req.Reason, now); err != nil {
			return err
		}

		cancelledBookings, err := s.bookings.CancelByContract(ctx, tx, contract.ID, req.Reason)
		if err != nil {
			return err
		}
		result.CancelledBookings = cancelledBookings

		cancelledInvoices, err := s.invoices.CancelPendingByContract(ctx, tx, contract.ID)
		if err != nil {
			return err
		}
		result.CancelledInvoices = cancelledInvoices

		if account == nil {
			return nil
		}

		// The tenant contribution is a deduction: its wallet credit goes to
		// the landlord. Each party's remainder refunds back to its owner.
		if split.TenantContribution > 0 {
			_, credit, err := s.escrow.DeductTx(ctx, tx, escrowdomain.DeductRequest{
				ContractID: contract.ID,
				Party:      escrowdomain.PartyTenant,
				Amount:     split.TenantContribution,
				Reference:  fmt.Sprintf("settlement:%d:contribution", contract.ID),
				Reason:     "unpaid invoices settled from deposit",
			})
			if err != nil {
				return err
			}
			credits = append(credits, *credit)
		}
		if split.TenantRefund > 0 {
			_, credit, err := s.escrow.RefundTx(ctx, tx, escrowdomain.RefundRequest{
				ContractID: contract.ID,
				Party:      escrowdomain.PartyTenant,
				Amount:     split.TenantRefund,
				Reference:  fmt.Sprintf("settlement:%d:tenant_refund", contract.ID),
				Reason:     "termination refund",
			})
			if err != nil {
				return err
			}
			credits = append(credits, *credit)
		}
		if landlordBalance > 0 {
			_, credit, err := s.escrow.RefundTx(ctx, tx, escrowdomain.RefundRequest{
				ContractID: contract.ID,
				Party:      escrowdomain.PartyLandlord,
				Amount:     landlordBalance,
				Reference:  fmt.Sprintf("settlement:%d:landlord_refund", contract.ID),
				Reason:     "termination refund",
			})
			if err != nil {
				return err
			}
			credits = append(credits, *credit)
		}

		return s.escrow.CloseTx(ctx, tx, contract.ID)
	})
	if err != nil {
		obsmetrics.Ledger().IncOperation("settlement", "error")
		return nil, err
	}
	obsmetrics.Ledger().IncOperation("settlement", "ok")

	s.escrow.DispatchWalletCredits(ctx, credits)
	s.hideListingIfVacated(ctx, contract, result)
	s.mirrorTermination(ctx, contract, req.Reason)
	s.notifyParties(ctx, contract, result)

	s.log.Info("contract settled",
		zap.Int64("contract_id", int64(contract.ID)),
		zap.String("reason", req.Reason),
		zap.String("initiator", req.Initiator),
		zap.Int64("unpaid_total", unpaidTotal),
		zap.Int64("tenant_refund", split.TenantRefund),
		zap.Int64("landlord_amount", split.LandlordAmount),
		zap.Int64("shortfall", split.Shortfall),
	)
	return result, nil
}

func (s *Service) hideListingIfVacated(ctx context.Context, contract *contractdomain.Contract, result *settlementdomain.SettlementResult) {
	occupied, err := s.contracts.CountOccupied(ctx, s.db, contract.PropertyID, contract.RoomID, contract.ID)
	if err != nil {
		s.log.Warn("listing occupancy check failed",
			zap.Int64("contract_id", int64(contract.ID)),
			zap.Error(err),
		)
		return
	}
	if occupied > 0 {
		return
	}
	if err := s.contracts.HideListing(ctx, s.db, contract.PropertyID, contract.RoomID); err != nil {
		s.log.Warn("listing hide failed",
			zap.Int64("property_id", int64(contract.PropertyID)),
			zap.Error(err),
		)
		return
	}
	result.ListingHidden = true
}

func (s *Service) mirrorTermination(ctx context.Context, contract *contractdomain.Contract, reason string) {
	err := s.chain.TerminateContract(ctx, chaindomain.ContractTerminated{
		ContractCode: contract.Code,
		Reason:       reason,
	})
	if err != nil {
		s.log.Warn("chain terminate mirror failed",
			zap.Int64("contract_id", int64(contract.ID)),
			zap.Error(err),
		)
	}
}

func (s *Service) notifyParties(ctx context.Context, contract *contractdomain.Contract, result *settlementdomain.SettlementResult) {
	metadata := map[string]any{
		"contractId":     contract.ID.String(),
		"reason":         result.Reason,
		"tenantRefund":   result.Split.TenantRefund,
		"landlordAmount": result.Split.LandlordAmount,
		"shortfall":      result.Split.Shortfall,
	}

	s.sendNotification(ctx, contract.TenantID,
		fmt.Sprintf("Contract %s was terminated (%s). Your deposit refund: %d.",
			contract.Code, result.Reason, result.Split.TenantRefund), metadata)
	s.sendNotification(ctx, contract.LandlordID,
		fmt.Sprintf("Contract %s was terminated (%s). Amount due to you: %d.",
			contract.Code, result.Reason, result.Split.LandlordAmount), metadata)
}

func (s *Service) sendNotification(ctx context.Context, userID snowflake.ID, content string, metadata map[string]any) {
	err := s.notifier.Create(ctx, notificationdomain.CreateRequest{
		UserID:   userID,
		Type:     notificationdomain.NotificationTypeContractTerminated,
		Title:    "Contract terminated",
		Content:  content,
		Metadata: metadata,
	})
	if err != nil {
		obsmetrics.Ledger().IncMirrorFailure("notification")
		s.log.Warn("termination notification failed",
			zap.Int64("user_id", int64(userID)),
			zap.Error(err),
		)
	}
}
