package domain

import (
	"errors"
	"time"
)

// DefaultRoundDuration is the length of a round window
const DefaultRoundDuration = 7 * 24 * time.Hour

// FirstRound is the round number the system starts in
const FirstRound uint64 = 1

// RoundPhase represents where the current round is in its lifecycle
type RoundPhase string

const (
	RoundPhaseOpen    RoundPhase = "OPEN"    // submitView accepted, finalizeRound rejected
	RoundPhaseExpired RoundPhase = "EXPIRED" // submitView rejected, finalizeRound accepted
)

// RoundState is the persisted state of the round clock
type RoundState struct {
	CurrentRound   uint64
	RoundStartTime time.Time
}

// Validate ensures the round state is usable
func (s RoundState) Validate() error {
	if s.CurrentRound < FirstRound {
		return errors.New("current round must be at least 1")
	}
	if s.RoundStartTime.IsZero() {
		return errors.New("round start time must be set")
	}
	return nil
}

// Deadline returns the last instant at which the round still accepts views
func (s RoundState) Deadline(duration time.Duration) time.Time {
	return s.RoundStartTime.Add(duration)
}
