package memory

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/domain"
)

// ledgerRepository implements domain.LedgerRepository
type ledgerRepository struct {
	state *state
}

func (r *ledgerRepository) BalanceOf(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	return r.state.balances[account], nil
}

func (r *ledgerRepository) Mint(ctx context.Context, account domain.Account, amount decimal.Decimal) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	r.state.balances[account] = r.state.balances[account].Add(amount)
	r.state.supply = r.state.supply.Add(amount)
	return nil
}

func (r *ledgerRepository) Transfer(ctx context.Context, from, to domain.Account, amount decimal.Decimal) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	balance := r.state.balances[from]
	if balance.LessThan(amount) {
		return fmt.Errorf("%s holds %s, needs %s: %w", from, balance, amount, domain.ErrInsufficientBalance)
	}
	r.state.balances[from] = balance.Sub(amount)
	r.state.balances[to] = r.state.balances[to].Add(amount)
	return nil
}

func (r *ledgerRepository) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	return r.state.supply, nil
}

// membershipRepository implements domain.MembershipRepository
type membershipRepository struct {
	state *state
}

func (r *membershipRepository) Get(ctx context.Context, account domain.Account) (*domain.Membership, error) {
	m, ok := r.state.members[account]
	if !ok {
		return nil, fmt.Errorf("membership %s: %w", account, domain.ErrNotFound)
	}
	return &m, nil
}

func (r *membershipRepository) Create(ctx context.Context, membership *domain.Membership) error {
	if _, ok := r.state.members[membership.Account]; ok {
		return domain.ErrAlreadyJoined
	}
	r.state.members[membership.Account] = *membership
	return nil
}

func (r *membershipRepository) Count(ctx context.Context) (int, error) {
	return len(r.state.members), nil
}

// roundRepository implements domain.RoundRepository
type roundRepository struct {
	state *state
}

func (r *roundRepository) GetState(ctx context.Context) (domain.RoundState, error) {
	if r.state.round == nil {
		return domain.RoundState{}, fmt.Errorf("round state: %w", domain.ErrNotFound)
	}
	return *r.state.round, nil
}

func (r *roundRepository) SaveState(ctx context.Context, state domain.RoundState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	r.state.round = &state
	return nil
}

func (r *roundRepository) GetRoundView(ctx context.Context, round uint64) (domain.RoundView, error) {
	view, ok := r.state.views[round]
	if !ok {
		return domain.RoundView{Round: round}, nil
	}
	return view, nil
}

func (r *roundRepository) SaveRoundView(ctx context.Context, view domain.RoundView) error {
	r.state.views[view.Round] = view
	return nil
}

func (r *roundRepository) GetDominantView(ctx context.Context) (domain.DominantView, error) {
	return r.state.dominant, nil
}

func (r *roundRepository) SaveDominantView(ctx context.Context, view domain.DominantView) error {
	r.state.dominant = view
	return nil
}

// resultRepository implements domain.ResultRepository
type resultRepository struct {
	state *state
}

func (r *resultRepository) Append(ctx context.Context, result *domain.RoundResult) error {
	for _, existing := range r.state.results {
		if existing.Round == result.Round {
			return fmt.Errorf("round %d already has a result", result.Round)
		}
	}
	r.state.results = append(r.state.results, *result)
	return nil
}

func (r *resultRepository) List(ctx context.Context, limit, offset int) ([]*domain.RoundResult, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid pagination: limit=%d offset=%d", limit, offset)
	}

	results := make([]*domain.RoundResult, 0, limit)
	// Newest first
	for i := len(r.state.results) - 1 - offset; i >= 0 && len(results) < limit; i-- {
		result := r.state.results[i]
		results = append(results, &result)
	}
	return results, nil
}

func (r *resultRepository) Count(ctx context.Context) (int, error) {
	return len(r.state.results), nil
}
