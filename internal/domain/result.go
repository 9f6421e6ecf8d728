package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoundResult is the entry published to the public log when a round is finalized
// Exactly one entry exists per finalized round
type RoundResult struct {
	ID           uuid.UUID
	Round        uint64  // Round number before the increment
	User         Account // Holder of the dominant slot at finalize time
	ETHReturnPct int64   // ETH figure of the dominant view
	UNIReturnPct int64   // UNI figure stored for Round, whoever wrote it last
	FinalizedAt  time.Time
}
