package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/rentora/escrow/internal/booking/domain"
	contractdomain "github.com/rentora/escrow/internal/contract/domain"
	escrowdomain "github.com/rentora/escrow/internal/escrow/domain"
	penaltydomain "github.com/rentora/escrow/internal/penalty/domain"
	settlementdomain "github.com/rentora/escrow/internal/settlement/domain"
	"gorm.io/gorm"
)

var ErrInvalidRequest = errors.New("invalid_request")

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware turns the last gin error into a JSON error body
// with the matching status code. Handlers push domain errors and abort.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func abortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, escrowdomain.ErrInvalidAmount),
		errors.Is(err, settlementdomain.ErrMissingParty):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, escrowdomain.ErrAccountNotFound),
		errors.Is(err, penaltydomain.ErrRecordNotFound),
		errors.Is(err, contractdomain.ErrContractNotFound),
		errors.Is(err, bookingdomain.ErrBookingNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, escrowdomain.ErrAlreadyApplied),
		errors.Is(err, escrowdomain.ErrInvalidState),
		errors.Is(err, escrowdomain.ErrInsufficientBalance),
		errors.Is(err, settlementdomain.ErrAlreadyTerminated),
		errors.Is(err, penaltydomain.ErrInvalidTransition),
		errors.Is(err, penaltydomain.ErrContractNotPenal),
		errors.Is(err, penaltydomain.ErrBookingNotEligible):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, penaltydomain.ErrInvoiceNotOverdue):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "not_applicable",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
