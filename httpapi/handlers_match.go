package httpapi

import (
	"net/http"

	"flightmate/escrow"
	"flightmate/match"

	"flightmate/httpapi/middleware"

	"github.com/gin-gonic/gin"
)

type paymentDTO struct {
	ID         string `json:"id"`
	RequestID  string `json:"request_id"`
	OfferID    string `json:"offer_id"`
	PayerID    string `json:"payer_id"`
	ReceiverID string `json:"receiver_id"`
	Domain     string `json:"domain"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

func toPaymentDTO(p escrow.Payment) paymentDTO {
	return paymentDTO{
		ID:         p.ID,
		RequestID:  p.RequestID,
		OfferID:    p.OfferID,
		PayerID:    p.PayerID,
		ReceiverID: p.ReceiverID,
		Domain:     p.Domain,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Status:     string(p.Status),
	}
}

type matchResultDTO struct {
	RequestID string     `json:"request_id"`
	OfferID   string     `json:"offer_id"`
	EscrowID  string     `json:"escrow_id"`
	Payment   paymentDTO `json:"payment"`
}

func (s *Server) findMatches(c *gin.Context) {
	offers, err := s.Matcher.FindMatches(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}

	items := make([]offerDTO, 0, len(offers))
	for _, o := range offers {
		items = append(items, toOfferDTO(o))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type confirmMatchBody struct {
	RequestID string `json:"request_id" binding:"required"`
	OfferID   string `json:"offer_id" binding:"required"`
}

func (s *Server) confirmMatch(c *gin.Context) {
	var body confirmMatchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "request_id and offer_id are required")
		return
	}

	result, err := s.Confirmer.Confirm(c.Request.Context(), match.ConfirmParams{
		RequestID: body.RequestID,
		OfferID:   body.OfferID,
		ActorID:   middleware.UserID(c),
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, matchResultDTO{
		RequestID: result.RequestID,
		OfferID:   result.OfferID,
		EscrowID:  result.Escrow.ID,
		Payment:   toPaymentDTO(result.Payment),
	})
}
