package domain

import "errors"

// Rejections raised by the core operations. A rejected call leaves the store unchanged.
var (
	ErrAlreadyJoined       = errors.New("account has already joined")
	ErrInsufficientDeposit = errors.New("deposit is below the minimum")
	ErrRoundWindowClosed   = errors.New("round window is closed")
	ErrNotAMember          = errors.New("caller has no voting power")
	ErrRoundStillOpen      = errors.New("round is still open")
	ErrUnauthorized        = errors.New("caller is not the administrator")
)

// Supporting errors for input validation and the ledger
var (
	ErrInvalidAccount      = errors.New("invalid account")
	ErrInvalidAmount       = errors.New("invalid amount: must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrInvalidPolicy       = errors.New("dominant view policy must be persist or reset")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrAlreadyJoined, "AlreadyJoined"},
	{ErrInsufficientDeposit, "InsufficientDeposit"},
	{ErrRoundWindowClosed, "RoundWindowClosed"},
	{ErrNotAMember, "NotAMember"},
	{ErrRoundStillOpen, "RoundStillOpen"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInvalidAccount, "InvalidAccount"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrNotFound, "NotFound"},
}

// Reason returns the taxonomy name of err, or "Internal" for anything unrecognized
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "Internal"
}
