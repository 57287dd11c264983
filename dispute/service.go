package dispute

import (
	"context"
	"fmt"
	"strings"

	"flightmate/escrow"
)

// Settler performs the escrow transition a resolution decides on.
type Settler interface {
	Release(ctx context.Context, params escrow.SettleParams) (escrow.Payment, error)
	Refund(ctx context.Context, params escrow.SettleParams) (escrow.Payment, error)
}

type Service struct {
	repo    *Repository
	settler Settler
}

func NewService(repo *Repository, settler Settler) *Service {
	return &Service{repo: repo, settler: settler}
}

func (s *Service) List(ctx context.Context, userID, paymentID string) ([]Record, error) {
	return s.repo.List(ctx, userID, paymentID)
}

func (s *Service) Create(ctx context.Context, userID, paymentID string, reason *string) (Record, error) {
	return s.repo.Create(ctx, userID, paymentID, reason)
}

// ResolveParams captures an admin ruling on a dispute.
type ResolveParams struct {
	DisputeID  string
	ActorID    string
	ActorRole  string
	Resolution Resolution
}

// Resolve applies the ruling: refund the traveler or release to the helper,
// then record the outcome. Only admins rule on disputes.
func (s *Service) Resolve(ctx context.Context, params ResolveParams) (Record, error) {
	if strings.ToLower(params.ActorRole) != "admin" {
		return Record{}, ErrForbidden
	}
	if params.Resolution != ResolutionReleased && params.Resolution != ResolutionRefunded {
		return Record{}, fmt.Errorf("dispute: unknown resolution %q", params.Resolution)
	}

	rec, escrowID, err := s.repo.GetByID(ctx, params.DisputeID)
	if err != nil {
		return Record{}, err
	}
	if rec.Status != StatusUnderReview {
		return Record{}, ErrBadStatus
	}

	settle := escrow.SettleParams{
		EscrowID:  escrowID,
		ActorID:   params.ActorID,
		ActorRole: params.ActorRole,
		Reason:    rec.Reason,
	}
	if params.Resolution == ResolutionRefunded {
		if _, err := s.settler.Refund(ctx, settle); err != nil {
			return Record{}, err
		}
	} else {
		if _, err := s.settler.Release(ctx, settle); err != nil {
			return Record{}, err
		}
	}

	return s.repo.MarkResolved(ctx, params.DisputeID, params.Resolution)
}
