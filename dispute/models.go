package dispute

import "time"

// Status represents the lifecycle of a dispute record.
type Status string

const (
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
)

// Resolution states how a resolved dispute settled the escrowed funds.
type Resolution string

const (
	ResolutionReleased Resolution = "released"
	ResolutionRefunded Resolution = "refunded"
)

// Record mirrors the disputes table.
type Record struct {
	ID         string
	PaymentID  string
	OpenedBy   string
	Reason     *string
	Status     Status
	Resolution *Resolution
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}
