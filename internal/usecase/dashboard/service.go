package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/usecase/roundclock"
)

// Overview represents the current state of the round lifecycle
type Overview struct {
	CurrentRound     uint64
	RoundStartTime   time.Time
	Deadline         time.Time
	Phase            domain.RoundPhase
	TotalVotingPower decimal.Decimal
	MemberCount      int
	DominantView     domain.DominantView
}

// DashboardService handles read-only overview queries
type DashboardService struct {
	Store      domain.Store
	Clock      domain.Clock
	RoundClock *roundclock.RoundClock
}

// NewDashboardService creates a new DashboardService instance
func NewDashboardService(store domain.Store, clock domain.Clock, roundClock *roundclock.RoundClock) *DashboardService {
	return &DashboardService{
		Store:      store,
		Clock:      clock,
		RoundClock: roundClock,
	}
}

// GetOverview reads the round clock, the ledger totals and the dominant slot from one snapshot
// Logic:
//   - Phase: OPEN until the deadline (inclusive), EXPIRED afterwards until finalized
//   - TotalVotingPower: ledger total supply (sum of all balances)
//   - MemberCount: accounts that completed join
func (s *DashboardService) GetOverview(ctx context.Context) (*Overview, error) {
	var overview *Overview

	err := s.Store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		state, err := tx.Rounds().GetState(ctx)
		if err != nil {
			return fmt.Errorf("failed to load round state: %w", err)
		}

		supply, err := tx.Ledger().TotalSupply(ctx)
		if err != nil {
			return fmt.Errorf("failed to read total supply: %w", err)
		}

		members, err := tx.Memberships().Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count members: %w", err)
		}

		dominant, err := tx.Rounds().GetDominantView(ctx)
		if err != nil {
			return fmt.Errorf("failed to load dominant view: %w", err)
		}

		overview = &Overview{
			CurrentRound:     state.CurrentRound,
			RoundStartTime:   state.RoundStartTime,
			Deadline:         s.RoundClock.Deadline(state),
			Phase:            s.RoundClock.Phase(state, s.Clock.Now()),
			TotalVotingPower: supply,
			MemberCount:      members,
			DominantView:     dominant,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return overview, nil
}
