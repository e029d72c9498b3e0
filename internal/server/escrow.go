package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	paymentdomain "github.com/rentora/escrow/internal/payment/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type depositPaymentRequest struct {
	ContractID snowflake.ID `json:"contract_id" binding:"required"`
	Party      string       `json:"party" binding:"required"`
	Amount     int64        `json:"amount" binding:"required"`
	Reference  string       `json:"reference"`
}

type depositPaymentResponse struct {
	PaymentID   snowflake.ID        `json:"payment_id"`
	Transaction transactionResponse `json:"transaction"`
	Account     accountResponse     `json:"account"`
}

type accountResponse struct {
	ContractID      snowflake.ID `json:"contract_id"`
	TenantID        snowflake.ID `json:"tenant_id"`
	LandlordID      snowflake.ID `json:"landlord_id"`
	TenantBalance   int64        `json:"tenant_balance"`
	LandlordBalance int64        `json:"landlord_balance"`
	Currency        string       `json:"currency"`
	Status          string       `json:"status"`
}

type transactionResponse struct {
	ID           snowflake.ID `json:"id"`
	ContractID   snowflake.ID `json:"contract_id"`
	Party        string       `json:"party"`
	Direction    string       `json:"direction"`
	Type         string       `json:"type"`
	Amount       int64        `json:"amount"`
	BalanceAfter int64        `json:"balance_after"`
	Reference    string       `json:"reference"`
	Reason       string       `json:"reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

func toAccountResponse(a *escrowdomain.Account) accountResponse {
	return accountResponse{
		ContractID:      a.ContractID,
		TenantID:        a.TenantID,
		LandlordID:      a.LandlordID,
		TenantBalance:   a.TenantBalance,
		LandlordBalance: a.LandlordBalance,
		Currency:        a.Currency,
		Status:          string(a.Status),
	}
}

func toTransactionResponse(t *escrowdomain.Transaction) transactionResponse {
	return transactionResponse{
		ID:           t.ID,
		ContractID:   t.ContractID,
		Party:        string(t.Party),
		Direction:    string(t.Direction),
		Type:         string(t.Type),
		Amount:       t.Amount,
		BalanceAfter: t.BalanceAfter,
		Reference:    t.Reference,
		Reason:       t.Reason,
		CreatedAt:    t.CreatedAt,
	}
}

// RecordDepositPayment books a completed deposit payment and credits the
// paying party's escrow balance. The tenant's first deposit also activates
// the contract.
func (s *Server) RecordDepositPayment(c *gin.Context) {
	var req depositPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, ErrInvalidRequest)
		return
	}
	party := escrowdomain.Party(req.Party)
	if party != escrowdomain.PartyTenant && party != escrowdomain.PartyLandlord {
		abortWithError(c, ErrInvalidRequest)
		return
	}
	if req.Amount <= 0 {
		abortWithError(c, escrowdomain.ErrInvalidAmount)
		return
	}

	ctx := c.Request.Context()
	contract, err := s.contracts.FindByID(ctx, s.db, req.ContractID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:         s.genID.Generate(),
		ContractID: contract.ID,
		PayerID:    contract.TenantID,
		Kind:       paymentdomain.PaymentKindDeposit,
		Status:     paymentdomain.PaymentStatusCompleted,
		Amount:     req.Amount,
		Currency:   contract.Currency,
		Reference:  req.Reference,
		PaidAt:     &now,
	}
	if party == escrowdomain.PartyLandlord {
		payment.PayerID = contract.LandlordID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payments.Insert(ctx, tx, payment); err != nil {
			return err
		}
		if party == escrowdomain.PartyTenant {
			return s.contracts.MarkFirstPaymentPaid(ctx, tx, contract.ID, now)
		}
		return nil
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	if _, err := s.escrow.EnsureAccount(ctx, escrowdomain.EnsureAccountRequest{
		ContractID: contract.ID,
		TenantID:   contract.TenantID,
		LandlordID: contract.LandlordID,
		Currency:   contract.Currency,
	}); err != nil {
		abortWithError(c, err)
		return
	}

	entry, err := s.escrow.CreditDeposit(ctx, escrowdomain.DepositRequest{
		ContractID: contract.ID,
		Party:      party,
		PaymentID:  payment.ID,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	account, err := s.escrow.AccountByContract(ctx, contract.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	s.log.Info("deposit payment recorded",
		zap.Int64("contract_id", int64(contract.ID)),
		zap.String("party", string(party)),
		zap.Int64("amount", req.Amount),
	)
	c.JSON(http.StatusCreated, depositPaymentResponse{
		PaymentID:   payment.ID,
		Transaction: toTransactionResponse(entry),
		Account:     toAccountResponse(account),
	})
}

// GetEscrowAccount returns the escrow balances for a contract.
func (s *Server) GetEscrowAccount(c *gin.Context) {
	contractID, ok := parseID(c, "id")
	if !ok {
		return
	}
	account, err := s.escrow.AccountByContract(c.Request.Context(), contractID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(account))
}

// ListEscrowTransactions returns the contract's ledger entries, oldest first.
func (s *Server) ListEscrowTransactions(c *gin.Context) {
	contractID, ok := parseID(c, "id")
	if !ok {
		return
	}
	entries, err := s.escrow.Transactions(c.Request.Context(), contractID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]transactionResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toTransactionResponse(&entries[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}
