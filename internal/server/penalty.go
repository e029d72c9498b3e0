package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
)

type penaltyRecordResponse struct {
	ID             snowflake.ID `json:"id"`
	ContractID     snowflake.ID `json:"contract_id"`
	TenantID       snowflake.ID `json:"tenant_id"`
	Party          string       `json:"party"`
	PenaltyType    string       `json:"penalty_type"`
	Period         string       `json:"period"`
	AppliedOn      string       `json:"applied_on"`
	DaysPastDue    int          `json:"days_past_due"`
	OriginalAmount int64        `json:"original_amount"`
	PenaltyAmount  int64        `json:"penalty_amount"`
	PenaltyRate    string       `json:"penalty_rate"`
	Reason         string       `json:"reason,omitempty"`
	Status         string       `json:"status"`
	AppliedBy      string       `json:"applied_by"`
	AppliedAt      time.Time    `json:"applied_at"`
}

type applyResultResponse struct {
	Outcome       string                 `json:"outcome"`
	ContractID    snowflake.ID           `json:"contract_id"`
	PenaltyAmount int64                  `json:"penalty_amount"`
	Reason        string                 `json:"reason,omitempty"`
	Record        *penaltyRecordResponse `json:"record,omitempty"`
}

func toPenaltyRecordResponse(r *penaltydomain.PenaltyRecord) *penaltyRecordResponse {
	if r == nil {
		return nil
	}
	return &penaltyRecordResponse{
		ID:             r.ID,
		ContractID:     r.ContractID,
		TenantID:       r.TenantID,
		Party:          r.Party,
		PenaltyType:    string(r.PenaltyType),
		Period:         r.Period,
		AppliedOn:      r.AppliedOn,
		DaysPastDue:    r.DaysPastDue,
		OriginalAmount: r.OriginalAmount,
		PenaltyAmount:  r.PenaltyAmount,
		PenaltyRate:    r.PenaltyRate.String(),
		Reason:         r.Reason,
		Status:         string(r.Status),
		AppliedBy:      r.AppliedBy,
		AppliedAt:      r.AppliedAt,
	}
}

func toApplyResultResponse(res *penaltydomain.ApplyResult) applyResultResponse {
	return applyResultResponse{
		Outcome:       string(res.Outcome),
		ContractID:    res.ContractID,
		PenaltyAmount: res.PenaltyAmount,
		Reason:        res.Reason,
		Record:        toPenaltyRecordResponse(res.Record),
	}
}

// ListContractPenalties returns every penalty record on a contract.
func (s *Server) ListContractPenalties(c *gin.Context) {
	contractID, ok := parseID(c, "id")
	if !ok {
		return
	}
	records, err := s.engineSvc.PenaltyHistoryForContract(c.Request.Context(), contractID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]*penaltyRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toPenaltyRecordResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"penalties": out})
}

// GetTenantPenaltyTotal returns the sum of a tenant's applied penalties.
func (s *Server) GetTenantPenaltyTotal(c *gin.Context) {
	tenantID, ok := parseID(c, "id")
	if !ok {
		return
	}
	total, err := s.engineSvc.TotalPenaltiesForTenant(c.Request.Context(), tenantID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tenant_id": tenantID,
		"total":     total,
	})
}

// ApplyOverduePenalty runs the overdue progression for one invoice on
// demand, exactly as the nightly batch would.
func (s *Server) ApplyOverduePenalty(c *gin.Context) {
	invoiceID, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := s.engineSvc.ApplyPaymentOverduePenalty(c.Request.Context(), invoiceID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplyResultResponse(res))
}

// CancelLateDepositBooking voids a booking whose deposit never arrived
// within the grace window.
func (s *Server) CancelLateDepositBooking(c *gin.Context) {
	bookingID, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := s.engineSvc.CancelBookingForLateDeposit(c.Request.Context(), bookingID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toApplyResultResponse(res))
}

type resolvePenaltyStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ResolvePenaltyStatus applies a dispute-resolution transition to a record.
func (s *Server) ResolvePenaltyStatus(c *gin.Context) {
	recordID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req resolvePenaltyStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, ErrInvalidRequest)
		return
	}
	to := penaltydomain.PenaltyStatus(req.Status)
	switch to {
	case penaltydomain.PenaltyStatusApplied,
		penaltydomain.PenaltyStatusWaived,
		penaltydomain.PenaltyStatusDisputed,
		penaltydomain.PenaltyStatusReversed:
	default:
		abortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.engineSvc.ResolveRecordStatus(c.Request.Context(), recordID, to); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": recordID, "status": string(to)})
}
