// Package memory implements domain.Store in process memory.
// Each Atomic call works on a copy of the state that replaces the live state
// only when the call succeeds, so a rejected call leaves nothing behind.
//
// Atomic and View copy the whole state, every round's views and every
// result included, so each call costs O(history). The store is meant for
// development and tests; use the postgres store for long-running deployments.
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/domain"
)

type state struct {
	balances map[domain.Account]decimal.Decimal
	supply   decimal.Decimal
	members  map[domain.Account]domain.Membership
	round    *domain.RoundState
	views    map[uint64]domain.RoundView
	dominant domain.DominantView
	results  []domain.RoundResult
}

func newState() *state {
	return &state{
		balances: make(map[domain.Account]decimal.Decimal),
		members:  make(map[domain.Account]domain.Membership),
		views:    make(map[uint64]domain.RoundView),
	}
}

func (s *state) clone() *state {
	c := &state{
		balances: make(map[domain.Account]decimal.Decimal, len(s.balances)),
		supply:   s.supply,
		members:  make(map[domain.Account]domain.Membership, len(s.members)),
		views:    make(map[uint64]domain.RoundView, len(s.views)),
		dominant: s.dominant,
		results:  make([]domain.RoundResult, len(s.results)),
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.views {
		c.views[k] = v
	}
	copy(c.results, s.results)
	if s.round != nil {
		round := *s.round
		c.round = &round
	}
	return c
}

// Store is an in-memory domain.Store
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore creates an empty store; run the genesis seeder before serving calls
func NewStore() *Store {
	return &Store{state: newState()}
}

// Atomic runs fn on a working copy and commits it only if fn succeeds
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{state: work}); err != nil {
		return err
	}

	s.state = work
	return nil
}

// View runs fn on a snapshot; writes made by fn are discarded
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(ctx, &tx{state: snapshot})
}

type tx struct {
	state *state
}

func (t *tx) Ledger() domain.LedgerRepository {
	return &ledgerRepository{state: t.state}
}

func (t *tx) Memberships() domain.MembershipRepository {
	return &membershipRepository{state: t.state}
}

func (t *tx) Rounds() domain.RoundRepository {
	return &roundRepository{state: t.state}
}

func (t *tx) Results() domain.ResultRepository {
	return &resultRepository{state: t.state}
}
