package views

import (
	"context"
	"fmt"

	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/usecase/roundclock"
)

// SubmitViewInput represents the estimates submitted for one round
type SubmitViewInput struct {
	ETHReturnPct int64 // Basis points
	UNIReturnPct int64 // Basis points
}

// SubmitViewResult is the state written by a submission
type SubmitViewResult struct {
	RoundView domain.RoundView
	Dominant  domain.DominantView
	Promoted  bool // True if the ETH view took the dominant slot
}

// ViewService handles view submission and the per-round view store
type ViewService struct {
	Store      domain.Store
	Clock      domain.Clock
	RoundClock *roundclock.RoundClock
}

// NewViewService creates a new ViewService instance
func NewViewService(store domain.Store, clock domain.Clock, roundClock *roundclock.RoundClock) *ViewService {
	return &ViewService{
		Store:      store,
		Clock:      clock,
		RoundClock: roundClock,
	}
}

// SubmitView records the caller's views for the current round
// Logic:
//  1. The round window must be open (RoundWindowClosed otherwise, whatever the caller's power)
//  2. The caller's current balance must be positive (NotAMember otherwise)
//  3. Overwrite both views of the current round with fresh views stamped with
//     the caller and the caller's current balance
//  4. If that balance strictly exceeds the dominant slot's power, the
//     DominantAsset (ETH) view just written replaces the slot
func (s *ViewService) SubmitView(ctx context.Context, caller domain.Account, input SubmitViewInput) (*SubmitViewResult, error) {
	if caller.IsZero() {
		return nil, domain.ErrInvalidAccount
	}

	var result *SubmitViewResult
	err := s.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		state, err := tx.Rounds().GetState(ctx)
		if err != nil {
			return fmt.Errorf("failed to load round state: %w", err)
		}

		if err := s.RoundClock.RequireInRoundWindow(state, s.Clock.Now()); err != nil {
			return err
		}

		power, err := tx.Ledger().BalanceOf(ctx, caller)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		if !power.IsPositive() {
			return domain.ErrNotAMember
		}

		roundView := domain.RoundView{
			Round: state.CurrentRound,
			ETHView: domain.TokenView{
				User:                     caller,
				VotingPower:              power,
				ExpectedReturnPercentage: input.ETHReturnPct,
			},
			UNIView: domain.TokenView{
				User:                     caller,
				VotingPower:              power,
				ExpectedReturnPercentage: input.UNIReturnPct,
			},
		}
		if err := tx.Rounds().SaveRoundView(ctx, roundView); err != nil {
			return fmt.Errorf("failed to save round view: %w", err)
		}

		dominant, err := tx.Rounds().GetDominantView(ctx)
		if err != nil {
			return fmt.Errorf("failed to load dominant view: %w", err)
		}

		candidate := roundView.View(domain.DominantAsset)
		promoted := candidate.Outranks(dominant.TokenView)
		if promoted {
			dominant = domain.DominantView{TokenView: candidate, RecordedRound: state.CurrentRound}
			if err := tx.Rounds().SaveDominantView(ctx, dominant); err != nil {
				return fmt.Errorf("failed to save dominant view: %w", err)
			}
		}

		result = &SubmitViewResult{RoundView: roundView, Dominant: dominant, Promoted: promoted}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetRoundView returns the views stored for a round (zero value if nothing was written)
func (s *ViewService) GetRoundView(ctx context.Context, round uint64) (domain.RoundView, error) {
	var view domain.RoundView
	err := s.Store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		view, err = tx.Rounds().GetRoundView(ctx, round)
		return err
	})
	return view, err
}

// GetDominantView returns the current dominant slot
func (s *ViewService) GetDominantView(ctx context.Context) (domain.DominantView, error) {
	var view domain.DominantView
	err := s.Store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		var err error
		view, err = tx.Rounds().GetDominantView(ctx)
		return err
	})
	return view, err
}
