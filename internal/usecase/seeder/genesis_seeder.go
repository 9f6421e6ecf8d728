package seeder

import (
	"context"
	"errors"
	"fmt"

	"github.com/simaogato/topvoter-backend/internal/domain"
)

// GenesisSeeder creates the initial round clock state
type GenesisSeeder struct {
	store domain.Store
	clock domain.Clock
}

// NewGenesisSeeder creates a new GenesisSeeder instance
func NewGenesisSeeder(store domain.Store, clock domain.Clock) *GenesisSeeder {
	return &GenesisSeeder{
		store: store,
		clock: clock,
	}
}

// Seed ensures the round clock state exists
// If it doesn't, round 1 starts now. An existing state is never touched,
// so restarting the process does not reset the running round.
// Returns the state in effect after seeding.
func (s *GenesisSeeder) Seed(ctx context.Context) (domain.RoundState, error) {
	var seeded domain.RoundState

	err := s.store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		existing, err := tx.Rounds().GetState(ctx)
		if err == nil {
			seeded = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to load round state: %w", err)
		}

		genesis := domain.RoundState{
			CurrentRound:   domain.FirstRound,
			RoundStartTime: s.clock.Now(),
		}
		if err := tx.Rounds().SaveState(ctx, genesis); err != nil {
			return fmt.Errorf("failed to save genesis round state: %w", err)
		}

		seeded = genesis
		return nil
	})
	if err != nil {
		return domain.RoundState{}, err
	}

	return seeded, nil
}
