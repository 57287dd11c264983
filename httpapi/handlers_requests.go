package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"flightmate/request"

	"flightmate/httpapi/middleware"

	"github.com/gin-gonic/gin"
)

type requestDTO struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Domain           string    `json:"domain"`
	FlightNumber     string    `json:"flight_number"`
	Airline          string    `json:"airline,omitempty"`
	FlightDate       time.Time `json:"flight_date"`
	DepartureAirport string    `json:"departure_airport"`
	ArrivalAirport   string    `json:"arrival_airport"`
	OfferedAmount    int64     `json:"offered_amount"`
	Currency         string    `json:"currency"`
	Notes            *string   `json:"notes,omitempty"`
	Status           string    `json:"status"`
	MatchedOfferID   *string   `json:"matched_offer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toRequestDTO(r request.Request) requestDTO {
	return requestDTO{
		ID:               r.ID,
		UserID:           r.UserID,
		Domain:           string(r.Domain),
		FlightNumber:     r.FlightNumber,
		Airline:          r.Airline,
		FlightDate:       r.FlightDate,
		DepartureAirport: r.DepartureAirport,
		ArrivalAirport:   r.ArrivalAirport,
		OfferedAmount:    r.OfferedAmount,
		Currency:         r.Currency,
		Notes:            r.Notes,
		Status:           string(r.Status),
		MatchedOfferID:   r.MatchedOfferID,
		CreatedAt:        r.CreatedAt,
	}
}

type createRequestBody struct {
	Domain           string  `json:"domain" binding:"required"`
	FlightNumber     string  `json:"flight_number" binding:"required"`
	Airline          string  `json:"airline"`
	FlightDate       string  `json:"flight_date" binding:"required"`
	DepartureAirport string  `json:"departure_airport" binding:"required"`
	ArrivalAirport   string  `json:"arrival_airport" binding:"required"`
	OfferedAmount    int64   `json:"offered_amount" binding:"required"`
	Currency         string  `json:"currency"`
	Notes            *string `json:"notes"`
}

func (s *Server) createRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	flightDate, err := time.Parse("2006-01-02", body.FlightDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "flight_date must be YYYY-MM-DD")
		return
	}

	created, err := s.Requests.Create(c.Request.Context(), request.CreateParams{
		UserID:           middleware.UserID(c),
		Domain:           request.Domain(body.Domain),
		FlightNumber:     body.FlightNumber,
		Airline:          body.Airline,
		FlightDate:       flightDate,
		DepartureAirport: body.DepartureAirport,
		ArrivalAirport:   body.ArrivalAirport,
		OfferedAmount:    body.OfferedAmount,
		Currency:         body.Currency,
		Notes:            body.Notes,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRequestDTO(created))
}

func (s *Server) listRequests(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	filters := request.Filters{
		Domain:    request.Domain(c.Query("domain")),
		Status:    request.Status(c.Query("status")),
		Airport:   c.Query("airport"),
		Page:      page,
		PageSize:  pageSize,
		SortKey:   c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if c.Query("mine") == "true" {
		filters.UserID = middleware.UserID(c)
	}

	result, err := s.Requests.List(c.Request.Context(), filters)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	items := make([]requestDTO, 0, len(result.Items))
	for _, r := range result.Items {
		items = append(items, toRequestDTO(r))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": result.Total})
}

func (s *Server) getRequest(c *gin.Context) {
	req, err := s.Requests.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRequestDTO(req))
}

func (s *Server) updateRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	flightDate, err := time.Parse("2006-01-02", body.FlightDate)
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "flight_date must be YYYY-MM-DD")
		return
	}

	updated, err := s.Requests.Update(c.Request.Context(), request.UpdateParams{
		RequestID:        c.Param("id"),
		ActorID:          middleware.UserID(c),
		FlightNumber:     body.FlightNumber,
		Airline:          body.Airline,
		FlightDate:       flightDate,
		DepartureAirport: body.DepartureAirport,
		ArrivalAirport:   body.ArrivalAirport,
		OfferedAmount:    body.OfferedAmount,
		Notes:            body.Notes,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRequestDTO(updated))
}

func (s *Server) cancelRequest(c *gin.Context) {
	var body struct {
		Reason *string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	cancelled, err := s.Requests.Cancel(c.Request.Context(), request.CancelParams{
		RequestID: c.Param("id"),
		ActorID:   middleware.UserID(c),
		ActorRole: middleware.UserRole(c),
		Reason:    body.Reason,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toRequestDTO(cancelled))
}
