package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"flightmate/helper"

	"github.com/gin-gonic/gin"
)

type helperDTO struct {
	ID          string    `json:"id"`
	FullName    string    `json:"full_name"`
	Rating      float64   `json:"rating"`
	HelpedCount int       `json:"helped_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func toHelperDTO(p helper.Profile) helperDTO {
	return helperDTO{
		ID:          p.ID,
		FullName:    p.FullName,
		Rating:      p.Rating,
		HelpedCount: p.HelpedCount,
		CreatedAt:   p.CreatedAt,
	}
}

func (s *Server) listHelpers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	profiles, err := s.Helpers.List(c.Request.Context(), limit)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	items := make([]helperDTO, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toHelperDTO(p))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) getHelper(c *gin.Context) {
	p, err := s.Helpers.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toHelperDTO(p))
}
