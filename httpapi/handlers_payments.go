package httpapi

import (
	"net/http"
	"time"

	"flightmate/dispute"
	"flightmate/escrow"

	"flightmate/httpapi/middleware"

	"github.com/gin-gonic/gin"
)

type disputeDTO struct {
	ID         string    `json:"id"`
	PaymentID  string    `json:"payment_id"`
	OpenedBy   string    `json:"opened_by"`
	Reason     *string   `json:"reason,omitempty"`
	Status     string    `json:"status"`
	Resolution *string   `json:"resolution,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func toDisputeDTO(d dispute.Record) disputeDTO {
	dto := disputeDTO{
		ID:        d.ID,
		PaymentID: d.PaymentID,
		OpenedBy:  d.OpenedBy,
		Reason:    d.Reason,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
	}
	if d.Resolution != nil {
		res := string(*d.Resolution)
		dto.Resolution = &res
	}
	return dto
}

func (s *Server) getPayment(c *gin.Context) {
	p, err := s.Escrow.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	actorID := middleware.UserID(c)
	if middleware.UserRole(c) != "admin" && p.PayerID != actorID && p.ReceiverID != actorID {
		respondError(c, http.StatusForbidden, "forbidden", "not a party to this payment")
		return
	}
	c.JSON(http.StatusOK, toPaymentDTO(p))
}

func (s *Server) createDispute(c *gin.Context) {
	var body struct {
		Reason *string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	d, err := s.Disputes.Create(c.Request.Context(), middleware.UserID(c), c.Param("id"), body.Reason)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDisputeDTO(d))
}

func (s *Server) refundPayment(c *gin.Context) {
	var body struct {
		Reason *string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	p, err := s.Escrow.RefundPayment(c.Request.Context(), c.Param("id"),
		middleware.UserID(c), middleware.UserRole(c), body.Reason)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentDTO(p))
}

func (s *Server) listDisputes(c *gin.Context) {
	userID := ""
	if middleware.UserRole(c) != "admin" {
		userID = middleware.UserID(c)
	}

	items, err := s.Disputes.List(c.Request.Context(), userID, c.Query("payment_id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	dtos := make([]disputeDTO, 0, len(items))
	for _, d := range items {
		dtos = append(dtos, toDisputeDTO(d))
	}
	c.JSON(http.StatusOK, gin.H{"items": dtos})
}

func (s *Server) resolveDispute(c *gin.Context) {
	var body struct {
		Resolution string `json:"resolution" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "resolution is required")
		return
	}

	d, err := s.Disputes.Resolve(c.Request.Context(), dispute.ResolveParams{
		DisputeID:  c.Param("id"),
		ActorID:    middleware.UserID(c),
		ActorRole:  middleware.UserRole(c),
		Resolution: dispute.Resolution(body.Resolution),
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDisputeDTO(d))
}

func (s *Server) completeService(c *gin.Context) {
	requestID := c.Param("id")

	req, err := s.Requests.GetByID(c.Request.Context(), requestID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	p, err := s.Escrow.CompleteService(c.Request.Context(), escrow.CompleteServiceParams{
		RequestID:      requestID,
		Domain:         string(req.Domain),
		ActorID:        middleware.UserID(c),
		ActorRole:      middleware.UserRole(c),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentDTO(p))
}

// completeServiceLegacy accepts the older body-addressed form of the
// completion call. Kept for clients that predate the /requests routes.
func (s *Server) completeServiceLegacy(c *gin.Context) {
	var body struct {
		RequestID string `json:"RequestId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "RequestId is required")
		return
	}

	req, err := s.Requests.GetByID(c.Request.Context(), body.RequestID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	p, err := s.Escrow.CompleteService(c.Request.Context(), escrow.CompleteServiceParams{
		RequestID:      body.RequestID,
		Domain:         string(req.Domain),
		ActorID:        middleware.UserID(c),
		ActorRole:      middleware.UserRole(c),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentDTO(p))
}
