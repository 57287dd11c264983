package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flightmate/auth"
	"flightmate/db"
	"flightmate/dispute"
	"flightmate/escrow"
	"flightmate/helper"
	"flightmate/httpapi"
	"flightmate/match"
	"flightmate/notify"
	"flightmate/offer"
	"flightmate/request"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	outbox := notify.NewOutbox()
	escrowService := escrow.NewService(pool, escrow.NewRepository(pool), escrow.LogGateway{}, outbox)

	server := &httpapi.Server{
		Auth:      auth.NewService(auth.NewRepository(pool), jwtSecret),
		Requests:  request.NewService(pool, nil, outbox),
		Offers:    offer.NewService(pool, nil, outbox),
		Matcher:   match.NewMatcher(pool),
		Confirmer: match.NewConfirmer(pool, escrowService, outbox),
		Escrow:    escrowService,
		Disputes:  dispute.NewService(dispute.NewRepository(pool), escrowService),
		Helpers:   helper.NewService(helper.NewRepository(pool)),
	}

	worker := notify.NewWorker(pool, nil)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("notify worker stopped: %v", err)
		}
	}()

	addr := os.Getenv("APP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewRouter(server),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
