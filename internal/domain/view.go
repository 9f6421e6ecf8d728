package domain

import (
	"github.com/shopspring/decimal"
)

// Asset identifies one of the two tracked assets
type Asset string

const (
	AssetETH Asset = "ETH"
	AssetUNI Asset = "UNI"
)

// DominantAsset is the only asset whose view can take the dominant slot.
// The UNI view of the same submission is stored per round but never ranked.
const DominantAsset = AssetETH

// TokenView is a single submitted estimate
// Immutable once created: a re-submission creates a fresh replacement
type TokenView struct {
	User                     Account
	VotingPower              decimal.Decimal // Snapshot of the submitter's balance at submission time
	ExpectedReturnPercentage int64           // Basis points, may be negative
}

// IsZero reports whether nothing has been written to this view
func (v TokenView) IsZero() bool {
	return v.User.IsZero() && v.VotingPower.IsZero() && v.ExpectedReturnPercentage == 0
}

// Outranks reports whether v has strictly more voting power than other
func (v TokenView) Outranks(other TokenView) bool {
	return v.VotingPower.GreaterThan(other.VotingPower)
}

// RoundView holds the latest views written in a round
// Reads of a round nothing was written to return the zero value for that round
type RoundView struct {
	Round   uint64
	ETHView TokenView
	UNIView TokenView
}

// View returns the stored view for the given asset
func (rv RoundView) View(asset Asset) TokenView {
	if asset == AssetUNI {
		return rv.UNIView
	}
	return rv.ETHView
}

// DominantView is the highest-voting-power ETH view seen since the slot was last cleared
type DominantView struct {
	TokenView
	RecordedRound uint64 // Round in which the view was written; 0 when empty
}

// DominantViewPolicy controls what happens to the dominant slot at finalize
type DominantViewPolicy string

const (
	// DominantViewPersist never clears the slot: power from an earlier round keeps suppressing later updates
	DominantViewPersist DominantViewPolicy = "persist"
	// DominantViewReset clears the slot as part of every finalize
	DominantViewReset DominantViewPolicy = "reset"
)

// Validate checks that the policy is a known value
func (p DominantViewPolicy) Validate() error {
	switch p {
	case DominantViewPersist, DominantViewReset:
		return nil
	default:
		return ErrInvalidPolicy
	}
}
