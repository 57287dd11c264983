package httpapi

import (
	"errors"
	"net/http"

	"flightmate/auth"

	"github.com/gin-gonic/gin"
)

type userDTO struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone,omitempty"`
	Rating   float64 `json:"rating"`
	Role     string  `json:"role"`
}

func toUserDTO(u auth.User) userDTO {
	return userDTO{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Phone:    u.Phone,
		Rating:   u.Rating,
		Role:     string(u.Role),
	}
}

func (s *Server) register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	user, err := s.Auth.Register(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			respondError(c, http.StatusConflict, "conflict", "email already registered")
		case errors.Is(err, auth.ErrWeakPassword):
			respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		default:
			respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": toUserDTO(*user)})
}

func (s *Server) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	result, err := s.Auth.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid email or password")
			return
		}
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": result.Token,
		"user":  toUserDTO(result.User),
	})
}
