package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	settlementdomain "github.com/rentora/escrow/internal/settlement/domain"
)

type terminateContractRequest struct {
	Reason string `json:"reason" binding:"required"`
	// InitiatorID identifies the user asking for the termination.
	InitiatorID         snowflake.ID `json:"initiator_id" binding:"required"`
	WaiveUnpaidInvoices bool         `json:"waive_unpaid_invoices"`
}

type settlementResponse struct {
	ContractID         snowflake.ID `json:"contract_id"`
	ContractCode       string       `json:"contract_code"`
	Reason             string       `json:"reason"`
	Initiator          string       `json:"initiator"`
	UnpaidTotal        int64        `json:"unpaid_total"`
	TenantContribution int64        `json:"tenant_contribution"`
	TenantRefund       int64        `json:"tenant_refund"`
	LandlordAmount     int64        `json:"landlord_amount"`
	Shortfall          int64        `json:"shortfall"`
	CancelledBookings  int64        `json:"cancelled_bookings"`
	CancelledInvoices  int64        `json:"cancelled_invoices"`
	ListingHidden      bool         `json:"listing_hidden"`
	TerminatedAt       time.Time    `json:"terminated_at"`
}

// TerminateContract settles and closes a contract on a user's request.
func (s *Server) TerminateContract(c *gin.Context) {
	contractID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req terminateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.settlement.Terminate(c.Request.Context(), settlementdomain.TerminationRequest{
		ContractID:          contractID,
		Reason:              req.Reason,
		Initiator:           fmt.Sprintf("user:%d", req.InitiatorID),
		WaiveUnpaidInvoices: req.WaiveUnpaidInvoices,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, settlementResponse{
		ContractID:         result.ContractID,
		ContractCode:       result.ContractCode,
		Reason:             result.Reason,
		Initiator:          result.Initiator,
		UnpaidTotal:        result.UnpaidTotal,
		TenantContribution: result.Split.TenantContribution,
		TenantRefund:       result.Split.TenantRefund,
		LandlordAmount:     result.Split.LandlordAmount,
		Shortfall:          result.Split.Shortfall,
		CancelledBookings:  result.CancelledBookings,
		CancelledInvoices:  result.CancelledInvoices,
		ListingHidden:      result.ListingHidden,
		TerminatedAt:       result.TerminatedAt,
	})
}
