package finalize

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/adapter/repository/memory"
	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/usecase/membership"
	"github.com/simaogato/topvoter-backend/internal/usecase/roundclock"
	"github.com/simaogato/topvoter-backend/internal/usecase/seeder"
	"github.com/simaogato/topvoter-backend/internal/usecase/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const admin domain.Account = "0xadmin"

var (
	genesis = time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC)
	day     = 24 * time.Hour
)

// MockResultPublisher is a mock implementation of ResultPublisher
type MockResultPublisher struct {
	mock.Mock
}

func (m *MockResultPublisher) Publish(ctx context.Context, result *domain.RoundResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type fixture struct {
	store      *memory.Store
	clock      *manualClock
	members    *membership.MembershipService
	views      *views.ViewService
	finalizer  *FinalizationService
	publisher  *MockResultPublisher
	roundClock *roundclock.RoundClock
}

func newFixture(t *testing.T, policy domain.DominantViewPolicy) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := &manualClock{now: genesis}
	roundClock, err := roundclock.NewRoundClock(domain.DefaultRoundDuration)
	require.NoError(t, err)

	_, err = seeder.NewGenesisSeeder(store, clock).Seed(context.Background())
	require.NoError(t, err)

	publisher := new(MockResultPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Maybe()

	return &fixture{
		store:      store,
		clock:      clock,
		members:    membership.NewMembershipService(store, clock, domain.DefaultMinimumDeposit),
		views:      views.NewViewService(store, clock, roundClock),
		finalizer:  NewFinalizationService(store, clock, roundClock, domain.SingleAdmin{Admin: admin}, policy, publisher, zap.NewNop()),
		publisher:  publisher,
		roundClock: roundClock,
	}
}

func (f *fixture) roundState(t *testing.T) domain.RoundState {
	t.Helper()
	var state domain.RoundState
	require.NoError(t, f.store.View(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		var err error
		state, err = tx.Rounds().GetState(ctx)
		return err
	}))
	return state
}

func TestFinalizeRound_EndToEndScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)

	// Account A deposits 1.0 and submits at t=0
	_, err := f.members.Join(ctx, "0xa", decimal.RequireFromString("1.0"))
	require.NoError(t, err)
	_, err = f.views.SubmitView(ctx, "0xa", views.SubmitViewInput{ETHReturnPct: 500, UNIReturnPct: -200})
	require.NoError(t, err)

	// Account B deposits 0.5 and submits at t=1 day
	f.clock.Set(genesis.Add(day))
	_, err = f.members.Join(ctx, "0xb", decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	_, err = f.views.SubmitView(ctx, "0xb", views.SubmitViewInput{ETHReturnPct: 100, UNIReturnPct: 300})
	require.NoError(t, err)

	// Administrator finalizes at t = 7 days + 1 second
	finalizeAt := genesis.Add(7*day + time.Second)
	f.clock.Set(finalizeAt)
	result, err := f.finalizer.FinalizeRound(ctx, admin)
	require.NoError(t, err)

	// A's ETH view as the higher-power submitter; B's UNI figure as the last write to round 1
	assert.Equal(t, uint64(1), result.Round)
	assert.Equal(t, domain.Account("0xa"), result.User)
	assert.Equal(t, int64(500), result.ETHReturnPct)
	assert.Equal(t, int64(300), result.UNIReturnPct)
	assert.Equal(t, finalizeAt, result.FinalizedAt)

	state := f.roundState(t)
	assert.Equal(t, uint64(2), state.CurrentRound)
	assert.Equal(t, finalizeAt, state.RoundStartTime)

	f.publisher.AssertCalled(t, "Publish", mock.Anything, result)
}

func TestFinalizeRound_Unauthorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)

	for _, at := range []time.Time{genesis, genesis.Add(8 * day)} {
		f.clock.Set(at)

		_, err := f.finalizer.FinalizeRound(ctx, "0xmallory")

		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Equal(t, uint64(1), f.roundState(t).CurrentRound)
	}
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestFinalizeRound_RoundStillOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)
	before := f.roundState(t)

	for _, at := range []time.Time{genesis, genesis.Add(3 * day), genesis.Add(domain.DefaultRoundDuration)} {
		f.clock.Set(at)

		_, err := f.finalizer.FinalizeRound(ctx, admin)

		assert.ErrorIs(t, err, domain.ErrRoundStillOpen)
		assert.Equal(t, before, f.roundState(t))
	}

	page, err := f.finalizer.ListResults(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)
}

func TestFinalizeRound_EmptyRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)
	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + time.Second))

	result, err := f.finalizer.FinalizeRound(ctx, admin)

	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Round)
	assert.True(t, result.User.IsZero())
	assert.Zero(t, result.ETHReturnPct)
	assert.Zero(t, result.UNIReturnPct)
}

func TestFinalizeRound_ConsecutiveRounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)

	first := genesis.Add(domain.DefaultRoundDuration + time.Second)
	f.clock.Set(first)
	_, err := f.finalizer.FinalizeRound(ctx, admin)
	require.NoError(t, err)

	// The new round is open immediately
	_, err = f.finalizer.FinalizeRound(ctx, admin)
	assert.ErrorIs(t, err, domain.ErrRoundStillOpen)

	f.clock.Set(first.Add(domain.DefaultRoundDuration + time.Second))
	result, err := f.finalizer.FinalizeRound(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Round)
	assert.Equal(t, uint64(3), f.roundState(t).CurrentRound)

	page, err := f.finalizer.ListResults(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, uint64(2), page.Results[0].Round)
	assert.Equal(t, uint64(1), page.Results[1].Round)
}

func TestFinalizeRound_PersistPolicyCarriesDominantSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)

	_, err := f.members.Join(ctx, "0xwhale", decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = f.members.Join(ctx, "0xminnow", decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = f.views.SubmitView(ctx, "0xwhale", views.SubmitViewInput{ETHReturnPct: 1000, UNIReturnPct: 1})
	require.NoError(t, err)

	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + time.Second))
	_, err = f.finalizer.FinalizeRound(ctx, admin)
	require.NoError(t, err)

	// Round 2: only the minnow submits, but the whale's round-1 power still holds the slot
	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + 2*time.Second))
	submit, err := f.views.SubmitView(ctx, "0xminnow", views.SubmitViewInput{ETHReturnPct: -40, UNIReturnPct: 60})
	require.NoError(t, err)
	assert.False(t, submit.Promoted)
	assert.Equal(t, uint64(1), submit.Dominant.RecordedRound)

	f.clock.Set(genesis.Add(2*domain.DefaultRoundDuration + 3*time.Second))
	result, err := f.finalizer.FinalizeRound(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Round)
	assert.Equal(t, domain.Account("0xwhale"), result.User)
	assert.Equal(t, int64(1000), result.ETHReturnPct)
	assert.Equal(t, int64(60), result.UNIReturnPct)
}

func TestFinalizeRound_ResetPolicyClearsDominantSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewReset)

	_, err := f.members.Join(ctx, "0xwhale", decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = f.members.Join(ctx, "0xminnow", decimal.NewFromInt(1))
	require.NoError(t, err)
	_, err = f.views.SubmitView(ctx, "0xwhale", views.SubmitViewInput{ETHReturnPct: 1000})
	require.NoError(t, err)

	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + time.Second))
	first, err := f.finalizer.FinalizeRound(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.Account("0xwhale"), first.User)

	dominant, err := f.views.GetDominantView(ctx)
	require.NoError(t, err)
	assert.True(t, dominant.IsZero())

	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + 2*time.Second))
	submit, err := f.views.SubmitView(ctx, "0xminnow", views.SubmitViewInput{ETHReturnPct: -40})
	require.NoError(t, err)
	assert.True(t, submit.Promoted)
	assert.Equal(t, uint64(2), submit.Dominant.RecordedRound)

	f.clock.Set(genesis.Add(2*domain.DefaultRoundDuration + 3*time.Second))
	second, err := f.finalizer.FinalizeRound(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.Account("0xminnow"), second.User)
}

func TestFinalizeRound_SubmitRejectedAfterExpiryUntilFinalized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)
	_, err := f.members.Join(ctx, "0xa", decimal.NewFromInt(1))
	require.NoError(t, err)

	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + time.Second))
	_, err = f.views.SubmitView(ctx, "0xa", views.SubmitViewInput{ETHReturnPct: 1})
	assert.ErrorIs(t, err, domain.ErrRoundWindowClosed)

	_, err = f.finalizer.FinalizeRound(ctx, admin)
	require.NoError(t, err)

	submit, err := f.views.SubmitView(ctx, "0xa", views.SubmitViewInput{ETHReturnPct: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), submit.RoundView.Round)
}

func TestFinalizeRound_PublishFailureIsLoggedNotReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)

	core, logs := observer.New(zapcore.WarnLevel)
	publisher := new(MockResultPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))
	f.finalizer.Publisher = publisher
	f.finalizer.Logger = zap.New(core)

	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + time.Second))
	result, err := f.finalizer.FinalizeRound(ctx, admin)

	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Round)
	assert.Equal(t, uint64(2), f.roundState(t).CurrentRound)
	require.Equal(t, 1, logs.FilterMessage("Failed to publish round result").Len())
	publisher.AssertExpectations(t)
}

func TestListResults_Validation(t *testing.T) {
	f := newFixture(t, domain.DominantViewPersist)

	_, err := f.finalizer.ListResults(context.Background(), 0, 0)
	assert.Error(t, err)
	_, err = f.finalizer.ListResults(context.Background(), 5, -1)
	assert.Error(t, err)
}

func TestListResults_ClampsLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.DominantViewPersist)

	at := genesis
	for i := 0; i < MaxResultsLimit+1; i++ {
		at = at.Add(domain.DefaultRoundDuration + time.Second)
		f.clock.Set(at)
		_, err := f.finalizer.FinalizeRound(ctx, admin)
		require.NoError(t, err)
	}

	page, err := f.finalizer.ListResults(ctx, math.MaxInt, 0)

	require.NoError(t, err)
	assert.Equal(t, MaxResultsLimit+1, page.TotalCount)
	assert.Len(t, page.Results, MaxResultsLimit)
	assert.Equal(t, uint64(MaxResultsLimit+1), page.Results[0].Round)
}
