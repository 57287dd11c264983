package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"flightmate/offer"

	"flightmate/httpapi/middleware"

	"github.com/gin-gonic/gin"
)

type offerDTO struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Domain           string    `json:"domain"`
	FlightNumber     string    `json:"flight_number"`
	Airline          string    `json:"airline,omitempty"`
	FlightDate       time.Time `json:"flight_date"`
	DepartureAirport string    `json:"departure_airport"`
	ArrivalAirport   string    `json:"arrival_airport"`
	RequestedAmount  int64     `json:"requested_amount"`
	Currency         string    `json:"currency"`
	Notes            *string   `json:"notes,omitempty"`
	Status           string    `json:"status"`
	HelpedCount      int       `json:"helped_count"`
	CreatedAt        time.Time `json:"created_at"`
}

func toOfferDTO(o offer.Offer) offerDTO {
	return offerDTO{
		ID:               o.ID,
		UserID:           o.UserID,
		Domain:           o.Domain,
		FlightNumber:     o.FlightNumber,
		Airline:          o.Airline,
		FlightDate:       o.FlightDate,
		DepartureAirport: o.DepartureAirport,
		ArrivalAirport:   o.ArrivalAirport,
		RequestedAmount:  o.RequestedAmount,
		Currency:         o.Currency,
		Notes:            o.Notes,
		Status:           string(o.Status),
		HelpedCount:      o.HelpedCount,
		CreatedAt:        o.CreatedAt,
	}
}

type createOfferBody struct {
	Domain           string  `json:"domain" binding:"required"`
	FlightNumber     string  `json:"flight_number" binding:"required"`
	Airline          string  `json:"airline"`
	FlightDate       string  `json:"flight_date" binding:"required"`
	DepartureAirport string  `json:"departure_airport" binding:"required"`
	ArrivalAirport   string  `json:"arrival_airport" binding:"required"`
	RequestedAmount  int64   `json:"requested_amount" binding:"required"`
	Currency         string  `json:"currency"`
	Notes            *string `json:"notes"`
}

func (s *Server) createOffer(c *gin.Context) {
	var body createOfferBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	flightDate, err := time.Parse("2006-01-02", body.FlightDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "flight_date must be YYYY-MM-DD")
		return
	}

	created, err := s.Offers.Create(c.Request.Context(), offer.CreateParams{
		UserID:           middleware.UserID(c),
		Domain:           body.Domain,
		FlightNumber:     body.FlightNumber,
		Airline:          body.Airline,
		FlightDate:       flightDate,
		DepartureAirport: body.DepartureAirport,
		ArrivalAirport:   body.ArrivalAirport,
		RequestedAmount:  body.RequestedAmount,
		Currency:         body.Currency,
		Notes:            body.Notes,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toOfferDTO(created))
}

func (s *Server) listOffers(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	filters := offer.Filters{
		Domain:       c.Query("domain"),
		Status:       offer.Status(c.Query("status")),
		FlightNumber: c.Query("flight_number"),
		Page:         page,
		PageSize:     pageSize,
	}
	if c.Query("mine") == "true" {
		filters.UserID = middleware.UserID(c)
	}

	result, err := s.Offers.List(c.Request.Context(), filters)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	items := make([]offerDTO, 0, len(result.Items))
	for _, o := range result.Items {
		items = append(items, toOfferDTO(o))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": result.Total})
}

func (s *Server) getOffer(c *gin.Context) {
	o, err := s.Offers.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOfferDTO(o))
}

func (s *Server) withdrawOffer(c *gin.Context) {
	o, err := s.Offers.Withdraw(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOfferDTO(o))
}
