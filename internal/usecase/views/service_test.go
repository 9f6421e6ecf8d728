package views

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/adapter/repository/memory"
	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/simaogato/topvoter-backend/internal/usecase/roundclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var genesis = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

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
	store   *memory.Store
	clock   *manualClock
	service *ViewService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	clock := &manualClock{now: genesis}
	roundClock, err := roundclock.NewRoundClock(domain.DefaultRoundDuration)
	require.NoError(t, err)

	require.NoError(t, store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Rounds().SaveState(ctx, domain.RoundState{CurrentRound: 1, RoundStartTime: genesis})
	}))

	return &fixture{
		store:   store,
		clock:   clock,
		service: NewViewService(store, clock, roundClock),
	}
}

func (f *fixture) fund(t *testing.T, account domain.Account, amount string) {
	t.Helper()
	require.NoError(t, f.store.Atomic(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		return tx.Ledger().Mint(ctx, account, decimal.RequireFromString(amount))
	}))
}

func TestSubmitView_StoresBothViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0xalice", "1.0")

	// Execute
	result, err := f.service.SubmitView(ctx, "0xalice", SubmitViewInput{ETHReturnPct: 500, UNIReturnPct: -200})

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Promoted)

	stored, err := f.service.GetRoundView(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account("0xalice"), stored.ETHView.User)
	assert.Equal(t, int64(500), stored.ETHView.ExpectedReturnPercentage)
	assert.Equal(t, int64(-200), stored.UNIView.ExpectedReturnPercentage)
	assert.True(t, decimal.NewFromInt(1).Equal(stored.ETHView.VotingPower))

	dominant, err := f.service.GetDominantView(ctx)
	require.NoError(t, err)
	assert.Equal(t, stored.ETHView, dominant.TokenView)
	assert.Equal(t, uint64(1), dominant.RecordedRound)
}

func TestSubmitView_HigherPowerTakesDominantSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0xlow", "0.5")
	f.fund(t, "0xhigh", "2")

	_, err := f.service.SubmitView(ctx, "0xlow", SubmitViewInput{ETHReturnPct: 10, UNIReturnPct: 11})
	require.NoError(t, err)
	_, err = f.service.SubmitView(ctx, "0xhigh", SubmitViewInput{ETHReturnPct: 20, UNIReturnPct: 21})
	require.NoError(t, err)

	dominant, err := f.service.GetDominantView(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Account("0xhigh"), dominant.User)
	assert.Equal(t, int64(20), dominant.ExpectedReturnPercentage)
}

func TestSubmitView_LowerOrEqualPowerDoesNotReplaceSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0xfirst", "1")
	f.fund(t, "0xequal", "1")
	f.fund(t, "0xlower", "0.2")

	_, err := f.service.SubmitView(ctx, "0xfirst", SubmitViewInput{ETHReturnPct: 100})
	require.NoError(t, err)

	result, err := f.service.SubmitView(ctx, "0xequal", SubmitViewInput{ETHReturnPct: 200})
	require.NoError(t, err)
	assert.False(t, result.Promoted)

	result, err = f.service.SubmitView(ctx, "0xlower", SubmitViewInput{ETHReturnPct: 300, UNIReturnPct: 9})
	require.NoError(t, err)
	assert.False(t, result.Promoted)

	dominant, err := f.service.GetDominantView(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Account("0xfirst"), dominant.User)
	assert.Equal(t, int64(100), dominant.ExpectedReturnPercentage)

	// The round slot always holds the latest write
	stored, err := f.service.GetRoundView(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.Account("0xlower"), stored.ETHView.User)
	assert.Equal(t, int64(9), stored.UNIView.ExpectedReturnPercentage)
}

func TestSubmitView_ResubmissionReplacesPriorViews(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0xalice", "1")

	_, err := f.service.SubmitView(ctx, "0xalice", SubmitViewInput{ETHReturnPct: 100, UNIReturnPct: 100})
	require.NoError(t, err)
	_, err = f.service.SubmitView(ctx, "0xalice", SubmitViewInput{ETHReturnPct: -50, UNIReturnPct: 75})
	require.NoError(t, err)

	stored, err := f.service.GetRoundView(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(-50), stored.ETHView.ExpectedReturnPercentage)
	assert.Equal(t, int64(75), stored.UNIView.ExpectedReturnPercentage)

	// Equal power on re-submission does not refresh the slot
	dominant, err := f.service.GetDominantView(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), dominant.ExpectedReturnPercentage)
}

func TestSubmitView_WindowClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0xwhale", "1000000")
	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + time.Second))

	// Execute
	_, err := f.service.SubmitView(ctx, "0xwhale", SubmitViewInput{ETHReturnPct: 1})

	// Assert: rejected regardless of power, nothing stored
	assert.ErrorIs(t, err, domain.ErrRoundWindowClosed)

	stored, err := f.service.GetRoundView(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoundView{Round: 1}, stored)
}

func TestSubmitView_WindowClosedReportedBeforeNotAMember(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(genesis.Add(domain.DefaultRoundDuration + time.Second))

	_, err := f.service.SubmitView(context.Background(), "0xnobody", SubmitViewInput{})
	assert.ErrorIs(t, err, domain.ErrRoundWindowClosed)
}

func TestSubmitView_NotAMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.SubmitView(ctx, "0xnobody", SubmitViewInput{ETHReturnPct: 1})
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	dominant, err := f.service.GetDominantView(ctx)
	require.NoError(t, err)
	assert.True(t, dominant.IsZero())
}

func TestSubmitView_SnapshotPowerSurvivesTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0xalice", "3")

	_, err := f.service.SubmitView(ctx, "0xalice", SubmitViewInput{ETHReturnPct: 1})
	require.NoError(t, err)

	require.NoError(t, f.store.Atomic(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Ledger().Transfer(ctx, "0xalice", "0xbob", decimal.NewFromInt(3))
	}))

	stored, err := f.service.GetRoundView(ctx, 1)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(stored.ETHView.VotingPower))

	// Alice now has zero balance and is no longer eligible
	_, err = f.service.SubmitView(ctx, "0xalice", SubmitViewInput{ETHReturnPct: 2})
	assert.ErrorIs(t, err, domain.ErrNotAMember)

	// Bob never joined but now holds power, so he may submit
	_, err = f.service.SubmitView(ctx, "0xbob", SubmitViewInput{ETHReturnPct: 3})
	assert.NoError(t, err)
}

func TestSubmitView_UNIViewNeverRanked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0xalice", "1")

	result, err := f.service.SubmitView(ctx, "0xalice", SubmitViewInput{ETHReturnPct: 5, UNIReturnPct: 999})
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.Dominant.ExpectedReturnPercentage)
	assert.Equal(t, result.RoundView.ETHView, result.Dominant.TokenView)
}

func TestGetRoundView_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0xalice", "1")
	_, err := f.service.SubmitView(ctx, "0xalice", SubmitViewInput{ETHReturnPct: 7, UNIReturnPct: 8})
	require.NoError(t, err)

	first, err := f.service.GetRoundView(ctx, 1)
	require.NoError(t, err)
	second, err := f.service.GetRoundView(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	d1, err := f.service.GetDominantView(ctx)
	require.NoError(t, err)
	d2, err := f.service.GetDominantView(ctx)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}
