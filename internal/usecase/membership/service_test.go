package membership

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/adapter/repository/memory"
	"github.com/simaogato/topvoter-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

var joinTime = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newService() *MembershipService {
	return NewMembershipService(memory.NewStore(), fixedClock{now: joinTime}, domain.DefaultMinimumDeposit)
}

func TestJoin_Success(t *testing.T) {
	ctx := context.Background()
	service := newService()

	// Execute
	info, err := service.Join(ctx, "0xalice", decimal.RequireFromString("1.0"))

	// Assert
	require.NoError(t, err)
	assert.True(t, info.Membership.HasJoined)
	assert.Equal(t, joinTime, info.Membership.JoinedAt)
	assert.True(t, decimal.NewFromInt(1).Equal(info.Balance)) // 1:1 deposit to voting power

	member, err := service.GetMember(ctx, "0xalice")
	require.NoError(t, err)
	assert.True(t, member.Membership.HasJoined)
	assert.True(t, decimal.NewFromInt(1).Equal(member.Balance))
}

func TestJoin_Twice(t *testing.T) {
	ctx := context.Background()
	service := newService()

	_, err := service.Join(ctx, "0xalice", decimal.NewFromInt(2))
	require.NoError(t, err)

	// Execute second join
	_, err = service.Join(ctx, "0xalice", decimal.NewFromInt(2))

	// Assert: rejected, balance changed only once
	assert.ErrorIs(t, err, domain.ErrAlreadyJoined)

	member, err := service.GetMember(ctx, "0xalice")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2).Equal(member.Balance))
}

func TestJoin_InsufficientDeposit(t *testing.T) {
	ctx := context.Background()

	deposits := []string{"0.09", "0.0999999", "0", "-1"}
	for _, raw := range deposits {
		t.Run(raw, func(t *testing.T) {
			service := newService()

			// Execute
			_, err := service.Join(ctx, "0xbob", decimal.RequireFromString(raw))

			// Assert: rejected and store unchanged
			assert.ErrorIs(t, err, domain.ErrInsufficientDeposit)

			member, err := service.GetMember(ctx, "0xbob")
			require.NoError(t, err)
			assert.False(t, member.Membership.HasJoined)
			assert.True(t, member.Balance.IsZero())
		})
	}
}

func TestJoin_InsufficientDepositReportedBeforeAlreadyJoined(t *testing.T) {
	ctx := context.Background()
	service := newService()

	_, err := service.Join(ctx, "0xalice", decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = service.Join(ctx, "0xalice", decimal.RequireFromString("0.01"))
	assert.ErrorIs(t, err, domain.ErrInsufficientDeposit)
}

func TestJoin_InvalidAccount(t *testing.T) {
	_, err := newService().Join(context.Background(), "", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestJoin_IncreasesTotalSupply(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	service := NewMembershipService(store, fixedClock{now: joinTime}, domain.DefaultMinimumDeposit)

	_, err := service.Join(ctx, "0xalice", decimal.RequireFromString("1.0"))
	require.NoError(t, err)
	_, err = service.Join(ctx, "0xbob", decimal.RequireFromString("0.5"))
	require.NoError(t, err)

	require.NoError(t, store.View(ctx, func(ctx context.Context, tx domain.Tx) error {
		supply, err := tx.Ledger().TotalSupply(ctx)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("1.5").Equal(supply))

		count, err := tx.Memberships().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		return nil
	}))
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	service := newService()

	_, err := service.Join(ctx, "0xalice", decimal.NewFromInt(2))
	require.NoError(t, err)

	tests := []struct {
		name    string
		from    domain.Account
		to      domain.Account
		amount  decimal.Decimal
		wantErr error
	}{
		{name: "Zero amount", from: "0xalice", to: "0xbob", amount: decimal.Zero, wantErr: domain.ErrInvalidAmount},
		{name: "Self transfer", from: "0xalice", to: "0xalice", amount: decimal.NewFromInt(1), wantErr: domain.ErrInvalidAccount},
		{name: "Missing recipient", from: "0xalice", to: "", amount: decimal.NewFromInt(1), wantErr: domain.ErrInvalidAccount},
		{name: "More than balance", from: "0xalice", to: "0xbob", amount: decimal.NewFromInt(3), wantErr: domain.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Transfer(ctx, tt.from, tt.to, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// A valid transfer moves balance but does not make the recipient a member
	result, err := service.Transfer(ctx, "0xalice", "0xbob", decimal.RequireFromString("0.75"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.25").Equal(result.FromBalance))
	assert.True(t, decimal.RequireFromString("0.75").Equal(result.ToBalance))

	bob, err := service.GetMember(ctx, "0xbob")
	require.NoError(t, err)
	assert.False(t, bob.Membership.HasJoined)
	assert.True(t, decimal.RequireFromString("0.75").Equal(bob.Balance))
}

func TestGetMember_UnknownAccount(t *testing.T) {
	member, err := newService().GetMember(context.Background(), "0xnobody")

	require.NoError(t, err)
	assert.Equal(t, domain.Account("0xnobody"), member.Membership.Account)
	assert.False(t, member.Membership.HasJoined)
	assert.True(t, member.Balance.IsZero())
}
