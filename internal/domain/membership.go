package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMinimumDeposit is the smallest deposit accepted by join (0.1 native units)
var DefaultMinimumDeposit = decimal.New(1, -1)

// Membership records that an account has joined
// Voting power is NOT stored here: it is the account's current ledger balance
type Membership struct {
	Account   Account
	HasJoined bool // Never reset once true
	JoinedAt  time.Time
	Deposit   decimal.Decimal // Amount minted at join time
}

// ValidateDeposit checks a join deposit against the minimum threshold
func ValidateDeposit(deposit, minimum decimal.Decimal) error {
	if deposit.LessThanOrEqual(decimal.Zero) || deposit.LessThan(minimum) {
		return ErrInsufficientDeposit
	}
	return nil
}

// ValidateAmount checks a ledger transfer amount
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	return nil
}
