package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/domain"
)

// MemberInfo is the read model returned for an account
type MemberInfo struct {
	Membership domain.Membership
	Balance    decimal.Decimal // Current voting power
}

// MembershipService handles joining and the voting-power ledger
type MembershipService struct {
	Store          domain.Store
	Clock          domain.Clock
	MinimumDeposit decimal.Decimal
}

// NewMembershipService creates a new MembershipService instance
func NewMembershipService(store domain.Store, clock domain.Clock, minimumDeposit decimal.Decimal) *MembershipService {
	return &MembershipService{
		Store:          store,
		Clock:          clock,
		MinimumDeposit: minimumDeposit,
	}
}

// Join converts a native-currency deposit into voting power 1:1
// Logic:
//  1. Reject deposits below the minimum (InsufficientDeposit)
//  2. Reject accounts that already joined (AlreadyJoined)
//  3. Record the membership and mint the deposit to the caller
//
// Both writes happen in one atomic call: either the caller is a member with
// the minted balance, or nothing changed.
func (s *MembershipService) Join(ctx context.Context, caller domain.Account, deposit decimal.Decimal) (*MemberInfo, error) {
	if caller.IsZero() {
		return nil, domain.ErrInvalidAccount
	}

	if err := domain.ValidateDeposit(deposit, s.MinimumDeposit); err != nil {
		return nil, fmt.Errorf("deposit %s, minimum %s: %w", deposit, s.MinimumDeposit, err)
	}

	var info *MemberInfo
	err := s.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		_, err := tx.Memberships().Get(ctx, caller)
		if err == nil {
			return domain.ErrAlreadyJoined
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to load membership: %w", err)
		}

		membership := &domain.Membership{
			Account:   caller,
			HasJoined: true,
			JoinedAt:  s.Clock.Now(),
			Deposit:   deposit,
		}
		if err := tx.Memberships().Create(ctx, membership); err != nil {
			return err
		}

		if err := tx.Ledger().Mint(ctx, caller, deposit); err != nil {
			return fmt.Errorf("failed to mint voting power: %w", err)
		}

		balance, err := tx.Ledger().BalanceOf(ctx, caller)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}

		info = &MemberInfo{Membership: *membership, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

// TransferResult carries both balances after a transfer
type TransferResult struct {
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
}

// Transfer moves voting power between accounts
// Views already stored keep the power they were submitted with
func (s *MembershipService) Transfer(ctx context.Context, caller, to domain.Account, amount decimal.Decimal) (*TransferResult, error) {
	if caller.IsZero() || to.IsZero() {
		return nil, domain.ErrInvalidAccount
	}
	if caller == to {
		return nil, fmt.Errorf("cannot transfer to self: %w", domain.ErrInvalidAccount)
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	var result *TransferResult
	err := s.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Ledger().Transfer(ctx, caller, to, amount); err != nil {
			return err
		}

		fromBalance, err := tx.Ledger().BalanceOf(ctx, caller)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		toBalance, err := tx.Ledger().BalanceOf(ctx, to)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}

		result = &TransferResult{FromBalance: fromBalance, ToBalance: toBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetMember returns the membership record and current balance of an account
// Accounts that never joined are returned with HasJoined = false and their ledger balance
func (s *MembershipService) GetMember(ctx context.Context, account domain.Account) (*MemberInfo, error) {
	if account.IsZero() {
		return nil, domain.ErrInvalidAccount
	}

	var info *MemberInfo
	err := s.Store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		balance, err := tx.Ledger().BalanceOf(ctx, account)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}

		membership := domain.Membership{Account: account}
		existing, err := tx.Memberships().Get(ctx, account)
		switch {
		case err == nil:
			membership = *existing
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("failed to load membership: %w", err)
		}

		info = &MemberInfo{Membership: membership, Balance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}
