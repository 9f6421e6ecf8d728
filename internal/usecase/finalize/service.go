package finalize

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/usecase/roundclock"
	"go.uber.org/zap"
)

// FinalizationService publishes round results and advances the round clock
type FinalizationService struct {
	Store      domain.Store
	Clock      domain.Clock
	RoundClock *roundclock.RoundClock
	Authorizer domain.Authorizer
	Policy     domain.DominantViewPolicy
	Publisher  domain.ResultPublisher // Optional fan-out after commit
	Logger     *zap.Logger
}

// NewFinalizationService creates a new FinalizationService instance
func NewFinalizationService(
	store domain.Store,
	clock domain.Clock,
	roundClock *roundclock.RoundClock,
	authorizer domain.Authorizer,
	policy domain.DominantViewPolicy,
	publisher domain.ResultPublisher,
	logger *zap.Logger,
) *FinalizationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinalizationService{
		Store:      store,
		Clock:      clock,
		RoundClock: roundClock,
		Authorizer: authorizer,
		Policy:     policy,
		Publisher:  publisher,
		Logger:     logger,
	}
}

// FinalizeRound closes the current round
// Logic:
//  1. Only the administrative identity may call (Unauthorized otherwise, even after expiry)
//  2. The round must have strictly expired (RoundStillOpen otherwise)
//  3. Append {round, dominant user, dominant ETH pct, round's UNI pct} to the log.
//     Only the ETH figure belongs to the dominant voter. The UNI figure is read
//     from the round store: whichever submission landed in that slot last.
//  4. Advance the clock: currentRound += 1, roundStartTime = now
//  5. Under the reset policy, clear the dominant slot
//
// Steps 3-5 commit together. Publishing to external observers happens after
// the commit and never undoes it.
func (s *FinalizationService) FinalizeRound(ctx context.Context, caller domain.Account) (*domain.RoundResult, error) {
	if s.Authorizer == nil || !s.Authorizer.IsAdmin(caller) {
		return nil, domain.ErrUnauthorized
	}

	var result *domain.RoundResult
	err := s.Store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		now := s.Clock.Now()

		state, err := tx.Rounds().GetState(ctx)
		if err != nil {
			return fmt.Errorf("failed to load round state: %w", err)
		}

		next, err := s.RoundClock.Advance(state, now)
		if err != nil {
			return err
		}

		roundView, err := tx.Rounds().GetRoundView(ctx, state.CurrentRound)
		if err != nil {
			return fmt.Errorf("failed to load round view: %w", err)
		}

		dominant, err := tx.Rounds().GetDominantView(ctx)
		if err != nil {
			return fmt.Errorf("failed to load dominant view: %w", err)
		}

		entry := &domain.RoundResult{
			ID:           uuid.New(),
			Round:        state.CurrentRound,
			User:         dominant.User,
			ETHReturnPct: dominant.ExpectedReturnPercentage,
			UNIReturnPct: roundView.View(domain.AssetUNI).ExpectedReturnPercentage,
			FinalizedAt:  now,
		}
		if err := tx.Results().Append(ctx, entry); err != nil {
			return fmt.Errorf("failed to append round result: %w", err)
		}

		if err := tx.Rounds().SaveState(ctx, next); err != nil {
			return fmt.Errorf("failed to advance round: %w", err)
		}

		if s.Policy == domain.DominantViewReset {
			if err := tx.Rounds().SaveDominantView(ctx, domain.DominantView{}); err != nil {
				return fmt.Errorf("failed to reset dominant view: %w", err)
			}
		}

		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Round finalized",
		zap.Uint64("round", result.Round),
		zap.String("user", result.User.String()),
		zap.Int64("eth_return_pct", result.ETHReturnPct),
		zap.Int64("uni_return_pct", result.UNIReturnPct),
		zap.String("policy", string(s.Policy)))

	if s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, result); err != nil {
			s.Logger.Warn("Failed to publish round result",
				zap.Uint64("round", result.Round),
				zap.Error(err))
		}
	}

	return result, nil
}

// ResultPage is one page of the public log
type ResultPage struct {
	Results    []*domain.RoundResult
	TotalCount int
}

// MaxResultsLimit bounds the page size of ListResults
const MaxResultsLimit = 100

// ListResults returns finalized round results, newest first
// A limit above MaxResultsLimit is clamped to it
func (s *FinalizationService) ListResults(ctx context.Context, limit, offset int) (*ResultPage, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	if offset < 0 {
		return nil, errors.New("offset must be non-negative")
	}
	limit = min(limit, MaxResultsLimit)

	page := &ResultPage{}
	err := s.Store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		count, err := tx.Results().Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count round results: %w", err)
		}
		results, err := tx.Results().List(ctx, limit, offset)
		if err != nil {
			return fmt.Errorf("failed to list round results: %w", err)
		}
		page.TotalCount = count
		page.Results = results
		return nil
	})
	if err != nil {
		return nil, err
	}

	return page, nil
}
