package roundclock

import (
	"errors"
	"fmt"
	"time"

	"github.com/simaogato/topvoter-backend/internal/domain"
)

// RoundClock enforces the fixed round window over a persisted domain.RoundState
// It is stateless: every check is evaluated freshly against the time it is given
type RoundClock struct {
	Duration time.Duration
}

// NewRoundClock creates a new RoundClock with a fixed round duration
func NewRoundClock(duration time.Duration) (*RoundClock, error) {
	if duration <= 0 {
		return nil, errors.New("round duration must be positive")
	}
	return &RoundClock{Duration: duration}, nil
}

// Deadline returns the last instant of the round window
func (c *RoundClock) Deadline(state domain.RoundState) time.Time {
	return state.Deadline(c.Duration)
}

// Phase reports whether the round is open or expired at now
func (c *RoundClock) Phase(state domain.RoundState, now time.Time) domain.RoundPhase {
	if now.After(c.Deadline(state)) {
		return domain.RoundPhaseExpired
	}
	return domain.RoundPhaseOpen
}

// RequireInRoundWindow passes iff now <= roundStartTime + Duration
func (c *RoundClock) RequireInRoundWindow(state domain.RoundState, now time.Time) error {
	if c.Phase(state, now) != domain.RoundPhaseOpen {
		return fmt.Errorf("round %d closed at %s: %w",
			state.CurrentRound, c.Deadline(state).Format(time.RFC3339), domain.ErrRoundWindowClosed)
	}
	return nil
}

// Advance starts the next round
// Logic:
//   - The round must have strictly expired (now > deadline)
//   - currentRound += 1
//   - roundStartTime = now
func (c *RoundClock) Advance(state domain.RoundState, now time.Time) (domain.RoundState, error) {
	if c.Phase(state, now) != domain.RoundPhaseExpired {
		return state, fmt.Errorf("round %d open until %s: %w",
			state.CurrentRound, c.Deadline(state).Format(time.RFC3339), domain.ErrRoundStillOpen)
	}

	return domain.RoundState{
		CurrentRound:   state.CurrentRound + 1,
		RoundStartTime: now,
	}, nil
}
