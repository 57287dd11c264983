package httpapi

import (
	"os"
	"strings"
	"time"

	"flightmate/auth"
	"flightmate/dispute"
	"flightmate/escrow"
	"flightmate/helper"
	"flightmate/match"
	"flightmate/offer"
	"flightmate/request"

	"flightmate/httpapi/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server bundles the services exposed over HTTP.
type Server struct {
	Auth      *auth.Service
	Requests  *request.Service
	Offers    *offer.Service
	Matcher   *match.Matcher
	Confirmer *match.Confirmer
	Escrow    *escrow.Service
	Disputes  *dispute.Service
	Helpers   *helper.Service
}

// NewRouter assembles the Gin engine with the full middleware chain and all
// API routes.
func NewRouter(s *Server) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), corsMiddleware())

	authed := middleware.RequireAuth(s.Auth)
	adminOnly := middleware.RequireRole(auth.RoleAdmin)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

		authGroup := api.Group("/auth")
		authGroup.POST("/register", s.register)
		authGroup.POST("/login", s.login)

		requests := api.Group("/requests", authed)
		requests.POST("", s.createRequest)
		requests.GET("", s.listRequests)
		requests.GET("/:id", s.getRequest)
		requests.PUT("/:id", s.updateRequest)
		requests.POST("/:id/cancel", s.cancelRequest)
		requests.GET("/:id/matches", s.findMatches)
		requests.POST("/:id/complete", s.completeService)

		offers := api.Group("/offers", authed)
		offers.POST("", s.createOffer)
		offers.GET("", s.listOffers)
		offers.GET("/:id", s.getOffer)
		offers.POST("/:id/withdraw", s.withdrawOffer)

		api.PUT("/matches", authed, s.confirmMatch)

		payments := api.Group("/payments", authed)
		payments.GET("/:id", s.getPayment)
		payments.POST("/:id/disputes", s.createDispute)
		payments.POST("/:id/refund", adminOnly, s.refundPayment)

		disputes := api.Group("/disputes", authed)
		disputes.GET("", s.listDisputes)
		disputes.POST("/:id/resolve", adminOnly, s.resolveDispute)

		helpers := api.Group("/helpers", authed)
		helpers.GET("", s.listHelpers)
		helpers.GET("/:id", s.getHelper)

		// legacy paths kept for older clients
		legacyFC := api.Group("/flightcompanion", authed)
		legacyFC.GET("/match/:id", s.findMatches)
		legacyFC.PUT("/match", s.confirmMatch)
		legacyFC.POST("/complete-service", s.completeServiceLegacy)
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Accept", "Origin", "X-Request-ID", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}

	if env := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); env != "" {
		for _, o := range strings.Split(env, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, o)
			}
		}
	} else {
		cfg.AllowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	return cors.New(cfg)
}
