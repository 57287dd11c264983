package escrow

import "time"

// PaymentStatus only moves forward: created -> held_in_escrow ->
// released | refunded. Terminal states admit no transition.
type PaymentStatus string

const (
	PaymentCreated      PaymentStatus = "created"
	PaymentHeldInEscrow PaymentStatus = "held_in_escrow"
	PaymentReleased     PaymentStatus = "released"
	PaymentRefunded     PaymentStatus = "refunded"
)

// Status tracks the escrow sub-record that owns the hold/release bookkeeping.
type Status string

const (
	StatusHeld     Status = "held"
	StatusReleased Status = "released"
	StatusRefunded Status = "refunded"
)

// Payment mirrors the payments table. One payment exists per successful
// match; amounts are integer cents.
type Payment struct {
	ID         string
	RequestID  string
	OfferID    string
	PayerID    string
	ReceiverID string
	Domain     string
	Amount     int64
	Currency   string
	Status     PaymentStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Record mirrors the escrows table.
type Record struct {
	ID          string
	PaymentID   string
	ProviderRef string
	Status      Status
	HeldAt      time.Time
	SettledAt   *time.Time
}

// MatchHoldParams enumerates the writes executed inside the match
// confirmation transaction.
type MatchHoldParams struct {
	RequestID  string
	OfferID    string
	PayerID    string
	ReceiverID string
	Domain     string
	Amount     int64
	Currency   string
}

const (
	// OutboxTopicReleased is published whenever escrowed funds are disbursed.
	OutboxTopicReleased = "escrow.released"
	// OutboxTopicRefunded is published whenever escrowed funds are returned.
	OutboxTopicRefunded = "escrow.refunded"
)
