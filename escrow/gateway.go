package escrow

import (
	"context"
	"log"
)

// Gateway is the narrow interface to the external payment provider. The
// provider owns the actual money movement; this service only records the
// resulting hold/release state.
type Gateway interface {
	// HoldFunds reserves amount cents against the payment and returns the
	// provider's reference for the hold. Must be idempotent per payment id.
	HoldFunds(ctx context.Context, paymentID string, amount int64, currency string) (string, error)
	// ReleaseFunds disburses a previously held amount to the receiver.
	ReleaseFunds(ctx context.Context, providerRef string) error
	// RefundFunds returns a previously held amount to the payer.
	RefundFunds(ctx context.Context, providerRef string) error
}

// LogGateway is a development stand-in that records provider calls without
// moving money.
type LogGateway struct{}

func (LogGateway) HoldFunds(ctx context.Context, paymentID string, amount int64, currency string) (string, error) {
	log.Printf("[escrow] hold payment_id=%s amount=%d currency=%s", paymentID, amount, currency)
	return "local-" + paymentID, nil
}

func (LogGateway) ReleaseFunds(ctx context.Context, providerRef string) error {
	log.Printf("[escrow] release provider_ref=%s", providerRef)
	return nil
}

func (LogGateway) RefundFunds(ctx context.Context, providerRef string) error {
	log.Printf("[escrow] refund provider_ref=%s", providerRef)
	return nil
}
