package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the single shared state store
// Every mutating operation runs inside Atomic. Calls are serialized: no two
// Atomic functions observe or mutate the state at the same time.
type Store interface {
	// Atomic runs fn with exclusive access to the state.
	// If fn returns an error none of its writes are kept.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn against a consistent read-only snapshot of the state
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx gives access to the repositories inside one Atomic or View call
type Tx interface {
	Ledger() LedgerRepository
	Memberships() MembershipRepository
	Rounds() RoundRepository
	Results() ResultRepository
}

// LedgerRepository defines the fungible balance ledger keyed by account
type LedgerRepository interface {
	// BalanceOf returns the balance of an account, zero if it never held any
	BalanceOf(ctx context.Context, account Account) (decimal.Decimal, error)

	// Mint credits an account and increases total supply
	Mint(ctx context.Context, account Account, amount decimal.Decimal) error

	// Transfer moves amount from one account to another
	// Returns ErrInsufficientBalance if from holds less than amount
	Transfer(ctx context.Context, from, to Account, amount decimal.Decimal) error

	// TotalSupply returns the sum of all balances
	TotalSupply(ctx context.Context) (decimal.Decimal, error)
}

// MembershipRepository defines the interface for membership persistence operations
type MembershipRepository interface {
	// Get retrieves a membership; returns ErrNotFound if the account never joined
	Get(ctx context.Context, account Account) (*Membership, error)

	// Create records a new membership
	Create(ctx context.Context, membership *Membership) error

	// Count returns the number of joined accounts
	Count(ctx context.Context) (int, error)
}

// RoundRepository defines persistence for the round clock and view aggregation state
type RoundRepository interface {
	// GetState returns the round clock state; ErrNotFound before genesis
	GetState(ctx context.Context) (RoundState, error)

	// SaveState overwrites the round clock state
	SaveState(ctx context.Context, state RoundState) error

	// GetRoundView returns the views stored for a round, or the zero value for that round
	GetRoundView(ctx context.Context, round uint64) (RoundView, error)

	// SaveRoundView overwrites the views stored for view.Round
	SaveRoundView(ctx context.Context, view RoundView) error

	// GetDominantView returns the dominant slot, zero-valued if empty
	GetDominantView(ctx context.Context) (DominantView, error)

	// SaveDominantView overwrites the dominant slot
	SaveDominantView(ctx context.Context, view DominantView) error
}

// ResultRepository is the append-only public log of finalized rounds
type ResultRepository interface {
	// Append adds a finalized round result
	Append(ctx context.Context, result *RoundResult) error

	// List returns results newest first
	List(ctx context.Context, limit, offset int) ([]*RoundResult, error)

	// Count returns the number of results in the log
	Count(ctx context.Context) (int, error)
}

// ResultPublisher fans finalized results out to external observers
type ResultPublisher interface {
	Publish(ctx context.Context, result *RoundResult) error
}
