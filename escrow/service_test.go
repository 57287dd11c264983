package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestHoldForMatch_ReplaysExistingHold(t *testing.T) {
	existing := Payment{ID: "pay-1", RequestID: "req-1", Status: PaymentHeldInEscrow}
	repo := &fakeStore{activePayment: &existing, activeEscrow: Record{ID: "esc-1", PaymentID: "pay-1", Status: StatusHeld}}
	gateway := &fakeGateway{}
	svc := NewService(&fakePool{}, repo, gateway, nil)

	payment, rec, err := svc.HoldForMatch(context.Background(), &fakeTx{}, MatchHoldParams{
		RequestID: "req-1",
		OfferID:   "off-1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if payment.ID != "pay-1" || rec.ID != "esc-1" {
		t.Errorf("expected existing payment and escrow, got %s/%s", payment.ID, rec.ID)
	}
	if repo.inserted {
		t.Errorf("expected no new payment on replay")
	}
	if gateway.holds != 0 {
		t.Errorf("expected no provider hold on replay, got %d", gateway.holds)
	}
}

func TestHoldForMatch_InsertsAndHolds(t *testing.T) {
	repo := &fakeStore{}
	gateway := &fakeGateway{ref: "prov-9"}
	svc := NewService(&fakePool{}, repo, gateway, nil)

	payment, rec, err := svc.HoldForMatch(context.Background(), &fakeTx{}, MatchHoldParams{
		RequestID:  "req-1",
		OfferID:    "off-1",
		PayerID:    "payer-1",
		ReceiverID: "recv-1",
		Domain:     "pickup",
		Amount:     2500,
		Currency:   "NZD",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !repo.inserted {
		t.Fatalf("expected payment insert")
	}
	if gateway.holds != 1 {
		t.Errorf("expected exactly one provider hold, got %d", gateway.holds)
	}
	if rec.ProviderRef != "prov-9" {
		t.Errorf("expected escrow to carry provider ref, got %q", rec.ProviderRef)
	}
	if payment.Amount != 2500 {
		t.Errorf("expected amount 2500, got %d", payment.Amount)
	}
}

func TestHoldForMatch_RejectsNonPositiveAmount(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeStore{}, &fakeGateway{}, nil)

	_, _, err := svc.HoldForMatch(context.Background(), &fakeTx{}, MatchHoldParams{
		RequestID:  "req-1",
		OfferID:    "off-1",
		PayerID:    "payer-1",
		ReceiverID: "recv-1",
		Amount:     0,
	})
	if err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestRelease_InvalidStateWhenAlreadySettled(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeStore{
		byEscrowPayment: Payment{ID: "pay-1", PayerID: "payer-1", Status: PaymentReleased},
		byEscrowRecord:  Record{ID: "esc-1", Status: StatusReleased},
	}
	svc := NewService(pool, repo, &fakeGateway{}, nil)

	_, err := svc.Release(context.Background(), SettleParams{
		EscrowID: "esc-1",
		ActorID:  "payer-1",
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected no commit on invalid state")
	}
}

func TestRelease_ForbiddenForStranger(t *testing.T) {
	repo := &fakeStore{
		byEscrowPayment: Payment{ID: "pay-1", PayerID: "payer-1", ReceiverID: "recv-1", Status: PaymentHeldInEscrow},
		byEscrowRecord:  Record{ID: "esc-1", Status: StatusHeld},
	}
	svc := NewService(&fakePool{}, repo, &fakeGateway{}, nil)

	_, err := svc.Release(context.Background(), SettleParams{
		EscrowID: "esc-1",
		ActorID:  "someone-else",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRefund_MarksSettledAndCommits(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeStore{
		byEscrowPayment: Payment{ID: "pay-1", PayerID: "payer-1", ReceiverID: "recv-1", Status: PaymentHeldInEscrow},
		byEscrowRecord:  Record{ID: "esc-1", Status: StatusHeld, ProviderRef: "prov-1"},
	}
	gateway := &fakeGateway{}
	svc := NewService(pool, repo, gateway, nil)

	payment, err := svc.Refund(context.Background(), SettleParams{
		EscrowID:  "esc-1",
		ActorID:   "admin-1",
		ActorRole: "admin",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if payment.Status != PaymentRefunded {
		t.Errorf("expected refunded status, got %s", payment.Status)
	}
	if repo.settledTo != StatusRefunded {
		t.Errorf("expected MarkSettled refunded, got %s", repo.settledTo)
	}
	if gateway.refunds != 1 {
		t.Errorf("expected one provider refund, got %d", gateway.refunds)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
}

func TestCompleteService_IdempotentReplay(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeStore{
		insertKeyErr:     ErrDuplicateIdempotencyKey,
		paymentByRequest: Payment{ID: "pay-1", RequestID: "req-1", Status: PaymentReleased},
	}
	svc := NewService(pool, repo, &fakeGateway{}, nil)

	payment, err := svc.CompleteService(context.Background(), CompleteServiceParams{
		RequestID:      "req-1",
		Domain:         "pickup",
		ActorID:        "payer-1",
		IdempotencyKey: "complete-req-1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if payment.ID != "pay-1" {
		t.Errorf("expected replayed payment, got %s", payment.ID)
	}
	if repo.settledTo != "" {
		t.Errorf("expected no settle on replay")
	}
	if pool.tx.committed {
		t.Errorf("expected commit to be skipped on replay")
	}
}

func TestCompleteService_ReleasesAndCompletesRequest(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeStore{
		heldPayment: Payment{ID: "pay-1", RequestID: "req-1", PayerID: "payer-1", ReceiverID: "recv-1", Amount: 3000, Status: PaymentHeldInEscrow},
		heldEscrow:  Record{ID: "esc-1", PaymentID: "pay-1", Status: StatusHeld, ProviderRef: "prov-1"},
	}
	gateway := &fakeGateway{}
	svc := NewService(pool, repo, gateway, nil)

	payment, err := svc.CompleteService(context.Background(), CompleteServiceParams{
		RequestID: "req-1",
		Domain:    "pickup",
		ActorID:   "recv-1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if payment.Status != PaymentReleased {
		t.Errorf("expected released status, got %s", payment.Status)
	}
	if repo.settledTo != StatusReleased {
		t.Errorf("expected MarkSettled released, got %s", repo.settledTo)
	}
	if gateway.releases != 1 {
		t.Errorf("expected one provider release, got %d", gateway.releases)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
	if pool.tx.execs != 1 {
		t.Errorf("expected the request close-out update, got %d execs", pool.tx.execs)
	}
}

func TestCompleteService_ForbiddenForStranger(t *testing.T) {
	repo := &fakeStore{
		heldPayment: Payment{ID: "pay-1", RequestID: "req-1", PayerID: "payer-1", ReceiverID: "recv-1", Status: PaymentHeldInEscrow},
		heldEscrow:  Record{ID: "esc-1", Status: StatusHeld},
	}
	svc := NewService(&fakePool{}, repo, &fakeGateway{}, nil)

	_, err := svc.CompleteService(context.Background(), CompleteServiceParams{
		RequestID: "req-1",
		Domain:    "pickup",
		ActorID:   "stranger",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

type fakeStore struct {
	activePayment    *Payment
	activeEscrow     Record
	byEscrowPayment  Payment
	byEscrowRecord   Record
	heldPayment      Payment
	heldEscrow       Record
	paymentByRequest Payment
	insertKeyErr     error
	inserted         bool
	settledTo        Status
}

func (f *fakeStore) InsertIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) error {
	return f.insertKeyErr
}

func (f *fakeStore) FindActivePayment(ctx context.Context, tx pgx.Tx, requestID string) (Payment, Record, error) {
	if f.activePayment != nil {
		return *f.activePayment, f.activeEscrow, nil
	}
	return Payment{}, Record{}, ErrPaymentNotFound
}

func (f *fakeStore) InsertPayment(ctx context.Context, tx pgx.Tx, params MatchHoldParams) (Payment, error) {
	f.inserted = true
	return Payment{
		ID:         "pay-new",
		RequestID:  params.RequestID,
		OfferID:    params.OfferID,
		PayerID:    params.PayerID,
		ReceiverID: params.ReceiverID,
		Domain:     params.Domain,
		Amount:     params.Amount,
		Currency:   params.Currency,
		Status:     PaymentHeldInEscrow,
	}, nil
}

func (f *fakeStore) InsertEscrow(ctx context.Context, tx pgx.Tx, paymentID, providerRef string) (Record, error) {
	return Record{ID: "esc-new", PaymentID: paymentID, ProviderRef: providerRef, Status: StatusHeld}, nil
}

func (f *fakeStore) GetByEscrowID(ctx context.Context, tx pgx.Tx, escrowID string) (Payment, Record, error) {
	if f.byEscrowRecord.ID == "" {
		return Payment{}, Record{}, ErrNotFound
	}
	return f.byEscrowPayment, f.byEscrowRecord, nil
}

func (f *fakeStore) GetHeldForRequest(ctx context.Context, tx pgx.Tx, requestID, domain string) (Payment, Record, error) {
	if f.heldPayment.ID == "" {
		return Payment{}, Record{}, ErrNotFound
	}
	return f.heldPayment, f.heldEscrow, nil
}

func (f *fakeStore) MarkSettled(ctx context.Context, tx pgx.Tx, escrowID, paymentID string, next Status) error {
	f.settledTo = next
	return nil
}

func (f *fakeStore) EscrowIDForPayment(ctx context.Context, paymentID string) (string, error) {
	if f.byEscrowRecord.ID == "" {
		return "", ErrNotFound
	}
	return f.byEscrowRecord.ID, nil
}

func (f *fakeStore) GetPayment(ctx context.Context, id string) (Payment, error) {
	return f.byEscrowPayment, nil
}

func (f *fakeStore) GetPaymentByRequest(ctx context.Context, requestID, domain string) (Payment, error) {
	if f.paymentByRequest.ID == "" {
		return Payment{}, ErrPaymentNotFound
	}
	return f.paymentByRequest, nil
}

type fakeGateway struct {
	ref      string
	holds    int
	releases int
	refunds  int
}

func (f *fakeGateway) HoldFunds(ctx context.Context, paymentID string, amount int64, currency string) (string, error) {
	f.holds++
	if f.ref == "" {
		return "prov-ref", nil
	}
	return f.ref, nil
}

func (f *fakeGateway) ReleaseFunds(ctx context.Context, providerRef string) error {
	f.releases++
	return nil
}

func (f *fakeGateway) RefundFunds(ctx context.Context, providerRef string) error {
	f.refunds++
	return nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
	execs     int
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	f.execs++
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
