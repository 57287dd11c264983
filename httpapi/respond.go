package httpapi

import (
	"errors"
	"log"
	"net/http"

	"flightmate/dispute"
	"flightmate/escrow"
	"flightmate/helper"
	"flightmate/match"
	"flightmate/offer"
	"flightmate/request"

	"flightmate/httpapi/middleware"

	"github.com/gin-gonic/gin"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}

// respondDomainError maps service errors to HTTP statuses. Unknown errors
// surface as a generic 500 with no internal detail leaked.
func respondDomainError(c *gin.Context, err error) {
	switch {
	case isNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error())
	case isConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error())
	case isForbidden(err):
		respondError(c, http.StatusForbidden, "forbidden", err.Error())
	case isValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error())
	default:
		log.Printf("[HTTP] request_id=%s internal error: %v", middleware.GetRequestID(c), err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, request.ErrNotFound) ||
		errors.Is(err, offer.ErrNotFound) ||
		errors.Is(err, match.ErrRequestNotFound) ||
		errors.Is(err, match.ErrOfferNotFound) ||
		errors.Is(err, escrow.ErrNotFound) ||
		errors.Is(err, escrow.ErrPaymentNotFound) ||
		errors.Is(err, dispute.ErrNotFound) ||
		errors.Is(err, helper.ErrNotFound)
}

func isConflict(err error) bool {
	return errors.Is(err, match.ErrAlreadyMatched) ||
		errors.Is(err, match.ErrOfferUnavailable) ||
		errors.Is(err, request.ErrCancelInvalidState) ||
		errors.Is(err, request.ErrEditInvalidState) ||
		errors.Is(err, offer.ErrWithdrawInvalidState) ||
		errors.Is(err, escrow.ErrInvalidState) ||
		errors.Is(err, dispute.ErrBadStatus)
}

func isForbidden(err error) bool {
	return errors.Is(err, match.ErrForbidden) ||
		errors.Is(err, request.ErrCancelForbidden) ||
		errors.Is(err, request.ErrEditForbidden) ||
		errors.Is(err, offer.ErrWithdrawForbidden) ||
		errors.Is(err, escrow.ErrForbidden) ||
		errors.Is(err, dispute.ErrForbidden)
}

func isValidation(err error) bool {
	return errors.Is(err, request.ErrInvalidAmount) ||
		errors.Is(err, request.ErrFlightInPast) ||
		errors.Is(err, request.ErrInvalidDomain) ||
		errors.Is(err, offer.ErrInvalidAmount) ||
		errors.Is(err, offer.ErrFlightInPast) ||
		errors.Is(err, match.ErrFlightMismatch) ||
		errors.Is(err, match.ErrSelfMatch)
}
