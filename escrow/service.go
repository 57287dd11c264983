package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrForbidden signals the actor is not a party to the payment.
	ErrForbidden = errors.New("escrow: actor is not a party to this payment")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error
	FindActivePayment(ctx context.Context, tx pgx.Tx, requestID string) (Payment, Record, error)
	InsertPayment(ctx context.Context, tx pgx.Tx, params MatchHoldParams) (Payment, error)
	InsertEscrow(ctx context.Context, tx pgx.Tx, paymentID, providerRef string) (Record, error)
	GetByEscrowID(ctx context.Context, tx pgx.Tx, escrowID string) (Payment, Record, error)
	GetHeldForRequest(ctx context.Context, tx pgx.Tx, requestID, domain string) (Payment, Record, error)
	MarkSettled(ctx context.Context, tx pgx.Tx, escrowID, paymentID string, next Status) error
	EscrowIDForPayment(ctx context.Context, paymentID string) (string, error)
	GetPayment(ctx context.Context, id string) (Payment, error)
	GetPaymentByRequest(ctx context.Context, requestID, domain string) (Payment, error)
}

// OutboxWriter appends a notification message inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

type Service struct {
	pool    TxBeginner
	repo    Store
	gateway Gateway
	outbox  OutboxWriter
}

func NewService(pool TxBeginner, repo Store, gateway Gateway, outbox OutboxWriter) *Service {
	if gateway == nil {
		gateway = LogGateway{}
	}
	return &Service{
		pool:    pool,
		repo:    repo,
		gateway: gateway,
		outbox:  outbox,
	}
}

// HoldForMatch creates the payment and escrow rows for a confirmed match and
// places the provider hold. It runs on the caller's transaction: a provider
// failure surfaces as an error before commit, so no match state is committed
// without a successful hold. Replays for the same request return the
// existing hold instead of double-holding.
func (s *Service) HoldForMatch(ctx context.Context, tx pgx.Tx, params MatchHoldParams) (Payment, Record, error) {
	if params.RequestID == "" || params.OfferID == "" {
		return Payment{}, Record{}, fmt.Errorf("escrow: hold missing request or offer id")
	}

	existing, rec, err := s.repo.FindActivePayment(ctx, tx, params.RequestID)
	switch {
	case err == nil:
		return existing, rec, nil
	case errors.Is(err, ErrPaymentNotFound):
		// continue with insert
	default:
		return Payment{}, Record{}, err
	}

	if params.PayerID == "" || params.ReceiverID == "" {
		return Payment{}, Record{}, fmt.Errorf("escrow: hold missing payer or receiver id")
	}
	if params.Amount <= 0 {
		return Payment{}, Record{}, fmt.Errorf("escrow: hold amount must be positive")
	}

	payment, err := s.repo.InsertPayment(ctx, tx, params)
	if err != nil {
		return Payment{}, Record{}, err
	}

	providerRef, err := s.gateway.HoldFunds(ctx, payment.ID, payment.Amount, payment.Currency)
	if err != nil {
		return Payment{}, Record{}, fmt.Errorf("escrow: provider hold: %w", err)
	}

	rec, err = s.repo.InsertEscrow(ctx, tx, payment.ID, providerRef)
	if err != nil {
		return Payment{}, Record{}, err
	}

	return payment, rec, nil
}

// SettleParams identifies an escrow transition requested by a participant.
type SettleParams struct {
	EscrowID  string
	ActorID   string
	ActorRole string
	Reason    *string
}

// Release disburses held funds to the receiver. Fails with ErrNotFound when
// no escrow exists for the id and ErrInvalidState unless the escrow is
// currently held.
func (s *Service) Release(ctx context.Context, params SettleParams) (Payment, error) {
	return s.settle(ctx, params, StatusReleased)
}

// Refund returns held funds to the payer.
func (s *Service) Refund(ctx context.Context, params SettleParams) (Payment, error) {
	return s.settle(ctx, params, StatusRefunded)
}

// RefundPayment refunds the escrow guarding the given payment. The escrow is
// re-locked and re-checked inside settle, so the lookup here is only a
// resolution step.
func (s *Service) RefundPayment(ctx context.Context, paymentID, actorID, actorRole string, reason *string) (Payment, error) {
	escrowID, err := s.repo.EscrowIDForPayment(ctx, paymentID)
	if err != nil {
		return Payment{}, err
	}
	return s.settle(ctx, SettleParams{
		EscrowID:  escrowID,
		ActorID:   actorID,
		ActorRole: actorRole,
		Reason:    reason,
	}, StatusRefunded)
}

// GetPayment returns a payment by id.
func (s *Service) GetPayment(ctx context.Context, id string) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) settle(ctx context.Context, params SettleParams, next Status) (Payment, error) {
	if params.EscrowID == "" {
		return Payment{}, fmt.Errorf("escrow: settle missing escrow id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	payment, rec, err := s.repo.GetByEscrowID(ctx, tx, params.EscrowID)
	if err != nil {
		return Payment{}, err
	}
	if err := authorizeParty(payment, params.ActorID, params.ActorRole); err != nil {
		return Payment{}, err
	}
	if rec.Status != StatusHeld || payment.Status != PaymentHeldInEscrow {
		return Payment{}, ErrInvalidState
	}

	if err := s.repo.MarkSettled(ctx, tx, rec.ID, payment.ID, next); err != nil {
		return Payment{}, err
	}

	if err := s.providerSettle(ctx, rec.ProviderRef, next); err != nil {
		return Payment{}, err
	}

	if s.outbox != nil {
		topic := OutboxTopicReleased
		if next == StatusRefunded {
			topic = OutboxTopicRefunded
		}
		payload := map[string]any{
			"payment_id":  payment.ID,
			"escrow_id":   rec.ID,
			"request_id":  payment.RequestID,
			"payer_id":    payment.PayerID,
			"receiver_id": payment.ReceiverID,
			"amount":      payment.Amount,
		}
		if params.Reason != nil {
			payload["reason"] = *params.Reason
		}
		if err := s.outbox.Enqueue(ctx, tx, topic, payload); err != nil {
			return Payment{}, fmt.Errorf("escrow: enqueue settle outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("escrow: settle commit: %w", err)
	}

	payment.Status = PaymentReleased
	if next == StatusRefunded {
		payment.Status = PaymentRefunded
	}
	return payment, nil
}

// CompleteServiceParams identifies the finished service whose funds should be
// disbursed.
type CompleteServiceParams struct {
	RequestID      string
	Domain         string
	ActorID        string
	ActorRole      string
	IdempotencyKey string
}

// CompleteService releases the escrowed funds for a finished request and
// marks the request completed, in one transaction. Only the payer, the
// receiver, or an admin may complete a service. An optional idempotency key
// turns client retries into no-ops.
func (s *Service) CompleteService(ctx context.Context, params CompleteServiceParams) (Payment, error) {
	if params.RequestID == "" {
		return Payment{}, fmt.Errorf("escrow: complete missing request id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if params.IdempotencyKey != "" {
		if err := s.repo.InsertIdempotencyKey(ctx, tx, params.IdempotencyKey); err != nil {
			if errors.Is(err, ErrDuplicateIdempotencyKey) {
				// Replay of an already-applied completion.
				return s.repo.GetPaymentByRequest(ctx, params.RequestID, params.Domain)
			}
			return Payment{}, err
		}
	}

	payment, rec, err := s.repo.GetHeldForRequest(ctx, tx, params.RequestID, params.Domain)
	if err != nil {
		return Payment{}, err
	}
	if err := authorizeParty(payment, params.ActorID, params.ActorRole); err != nil {
		return Payment{}, err
	}

	if err := s.repo.MarkSettled(ctx, tx, rec.ID, payment.ID, StatusReleased); err != nil {
		return Payment{}, err
	}

	// Close out the request in the same unit of work.
	tag, err := tx.Exec(ctx, `
		UPDATE requests
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1 AND status = 'matched'
	`, payment.RequestID)
	if err != nil {
		return Payment{}, fmt.Errorf("escrow: complete request: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return Payment{}, ErrInvalidState
	}

	if err := s.providerSettle(ctx, rec.ProviderRef, StatusReleased); err != nil {
		return Payment{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"payment_id":  payment.ID,
			"request_id":  payment.RequestID,
			"receiver_id": payment.ReceiverID,
			"amount":      payment.Amount,
		}
		if err := s.outbox.Enqueue(ctx, tx, "service.completed", payload); err != nil {
			return Payment{}, fmt.Errorf("escrow: enqueue complete outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Payment{}, fmt.Errorf("escrow: complete commit: %w", err)
	}

	payment.Status = PaymentReleased
	return payment, nil
}

func (s *Service) providerSettle(ctx context.Context, providerRef string, next Status) error {
	if next == StatusRefunded {
		if err := s.gateway.RefundFunds(ctx, providerRef); err != nil {
			return fmt.Errorf("escrow: provider refund: %w", err)
		}
		return nil
	}
	if err := s.gateway.ReleaseFunds(ctx, providerRef); err != nil {
		return fmt.Errorf("escrow: provider release: %w", err)
	}
	return nil
}

func authorizeParty(p Payment, actorID, actorRole string) error {
	if strings.ToLower(actorRole) == "admin" {
		return nil
	}
	if actorID == "" || (actorID != p.PayerID && actorID != p.ReceiverID) {
		return ErrForbidden
	}
	return nil
}
