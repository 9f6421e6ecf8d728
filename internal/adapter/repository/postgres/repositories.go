package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/simaogato/topvoter-backend/internal/domain"
)

// SQLSTATE unique_violation
const uniqueViolation = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func parseDecimal(column, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return d, nil
}

// ledgerRepository implements domain.LedgerRepository
type ledgerRepository struct {
	q querier
}

// BalanceOf returns zero for accounts without a row
func (r *ledgerRepository) BalanceOf(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	var balanceStr string
	err := r.q.QueryRowContext(ctx, `SELECT balance FROM ledger_balances WHERE account = $1`, account.String()).Scan(&balanceStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return parseDecimal("balance", balanceStr)
}

func (r *ledgerRepository) Mint(ctx context.Context, account domain.Account, amount decimal.Decimal) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	if err := r.credit(ctx, account, amount); err != nil {
		return fmt.Errorf("failed to mint: %w", err)
	}
	return nil
}

func (r *ledgerRepository) Transfer(ctx context.Context, from, to domain.Account, amount decimal.Decimal) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}

	balance, err := r.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("%s holds %s, needs %s: %w", from, balance, amount, domain.ErrInsufficientBalance)
	}

	query := `
		UPDATE ledger_balances
		SET balance = balance - $2
		WHERE account = $1
	`
	if _, err := r.q.ExecContext(ctx, query, from.String(), amount.String()); err != nil {
		return fmt.Errorf("failed to debit sender: %w", err)
	}

	if err := r.credit(ctx, to, amount); err != nil {
		return fmt.Errorf("failed to credit recipient: %w", err)
	}

	return nil
}

func (r *ledgerRepository) credit(ctx context.Context, account domain.Account, amount decimal.Decimal) error {
	query := `
		INSERT INTO ledger_balances (account, balance)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET balance = ledger_balances.balance + EXCLUDED.balance
	`
	_, err := r.q.ExecContext(ctx, query, account.String(), amount.String())
	return err
}

func (r *ledgerRepository) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	var supplyStr string
	if err := r.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(balance), 0)::TEXT FROM ledger_balances`).Scan(&supplyStr); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum balances: %w", err)
	}
	return parseDecimal("total supply", supplyStr)
}

// membershipRepository implements domain.MembershipRepository
type membershipRepository struct {
	q querier
}

func (r *membershipRepository) Get(ctx context.Context, account domain.Account) (*domain.Membership, error) {
	var (
		joinedAt   time.Time
		depositStr string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT joined_at, deposit FROM memberships WHERE account = $1`,
		account.String(),
	).Scan(&joinedAt, &depositStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership %s: %w", account, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	deposit, err := parseDecimal("deposit", depositStr)
	if err != nil {
		return nil, err
	}

	return &domain.Membership{
		Account:   account,
		HasJoined: true,
		JoinedAt:  joinedAt.UTC(),
		Deposit:   deposit,
	}, nil
}

func (r *membershipRepository) Create(ctx context.Context, membership *domain.Membership) error {
	query := `
		INSERT INTO memberships (account, joined_at, deposit)
		VALUES ($1, $2, $3)
	`
	_, err := r.q.ExecContext(ctx, query,
		membership.Account.String(),
		membership.JoinedAt,
		membership.Deposit.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyJoined
		}
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (r *membershipRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM memberships`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count memberships: %w", err)
	}
	return n, nil
}

// roundRepository implements domain.RoundRepository
type roundRepository struct {
	q querier
}

func (r *roundRepository) GetState(ctx context.Context) (domain.RoundState, error) {
	var (
		state     domain.RoundState
		round     int64
		startTime time.Time
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT current_round, round_start_time FROM round_state WHERE id = 1`,
	).Scan(&round, &startTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, fmt.Errorf("round state: %w", domain.ErrNotFound)
		}
		return state, fmt.Errorf("failed to get round state: %w", err)
	}

	state.CurrentRound = uint64(round)
	state.RoundStartTime = startTime.UTC()
	return state, nil
}

func (r *roundRepository) SaveState(ctx context.Context, state domain.RoundState) error {
	if err := state.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO round_state (id, current_round, round_start_time)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			current_round = EXCLUDED.current_round,
			round_start_time = EXCLUDED.round_start_time
	`
	if _, err := r.q.ExecContext(ctx, query, int64(state.CurrentRound), state.RoundStartTime); err != nil {
		return fmt.Errorf("failed to save round state: %w", err)
	}
	return nil
}

// GetRoundView returns the zero value for assets nothing was written to
func (r *roundRepository) GetRoundView(ctx context.Context, round uint64) (domain.RoundView, error) {
	view := domain.RoundView{Round: round}

	query := `
		SELECT asset, user_account, voting_power, expected_return_pct
		FROM round_views
		WHERE round = $1
	`
	rows, err := r.q.QueryContext(ctx, query, int64(round))
	if err != nil {
		return view, fmt.Errorf("failed to query round views: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			asset string
			tv    domain.TokenView
			user  string
			power string
		)
		if err := rows.Scan(&asset, &user, &power, &tv.ExpectedReturnPercentage); err != nil {
			return view, fmt.Errorf("failed to scan round view: %w", err)
		}
		tv.User = domain.Account(user)
		if tv.VotingPower, err = parseDecimal("voting_power", power); err != nil {
			return view, err
		}

		switch domain.Asset(asset) {
		case domain.AssetETH:
			view.ETHView = tv
		case domain.AssetUNI:
			view.UNIView = tv
		}
	}
	if err := rows.Err(); err != nil {
		return view, fmt.Errorf("error iterating round views: %w", err)
	}

	return view, nil
}

func (r *roundRepository) SaveRoundView(ctx context.Context, view domain.RoundView) error {
	query := `
		INSERT INTO round_views (round, asset, user_account, voting_power, expected_return_pct)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (round, asset) DO UPDATE SET
			user_account = EXCLUDED.user_account,
			voting_power = EXCLUDED.voting_power,
			expected_return_pct = EXCLUDED.expected_return_pct
	`
	for _, asset := range []domain.Asset{domain.AssetETH, domain.AssetUNI} {
		v := view.View(asset)
		if v.IsZero() {
			continue
		}
		_, err := r.q.ExecContext(ctx, query,
			int64(view.Round),
			string(asset),
			v.User.String(),
			v.VotingPower.String(),
			v.ExpectedReturnPercentage,
		)
		if err != nil {
			return fmt.Errorf("failed to save %s view: %w", asset, err)
		}
	}
	return nil
}

func (r *roundRepository) GetDominantView(ctx context.Context) (domain.DominantView, error) {
	var (
		view  domain.DominantView
		user  string
		power string
		round int64
	)
	query := `
		SELECT user_account, voting_power, expected_return_pct, recorded_round
		FROM dominant_view
		WHERE id = 1
	`
	err := r.q.QueryRowContext(ctx, query).Scan(&user, &power, &view.ExpectedReturnPercentage, &round)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DominantView{}, nil
		}
		return view, fmt.Errorf("failed to get dominant view: %w", err)
	}

	view.User = domain.Account(user)
	view.RecordedRound = uint64(round)
	if view.VotingPower, err = parseDecimal("voting_power", power); err != nil {
		return domain.DominantView{}, err
	}
	return view, nil
}

func (r *roundRepository) SaveDominantView(ctx context.Context, view domain.DominantView) error {
	query := `
		INSERT INTO dominant_view (id, user_account, voting_power, expected_return_pct, recorded_round)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			user_account = EXCLUDED.user_account,
			voting_power = EXCLUDED.voting_power,
			expected_return_pct = EXCLUDED.expected_return_pct,
			recorded_round = EXCLUDED.recorded_round
	`
	_, err := r.q.ExecContext(ctx, query,
		view.User.String(),
		view.VotingPower.String(),
		view.ExpectedReturnPercentage,
		int64(view.RecordedRound),
	)
	if err != nil {
		return fmt.Errorf("failed to save dominant view: %w", err)
	}
	return nil
}

// resultRepository implements domain.ResultRepository
type resultRepository struct {
	q querier
}

func (r *resultRepository) Append(ctx context.Context, result *domain.RoundResult) error {
	query := `
		INSERT INTO round_results (id, round, user_account, eth_return_pct, uni_return_pct, finalized_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.q.ExecContext(ctx, query,
		result.ID,
		int64(result.Round),
		result.User.String(),
		result.ETHReturnPct,
		result.UNIReturnPct,
		result.FinalizedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("round %d already has a result", result.Round)
		}
		return fmt.Errorf("failed to append round result: %w", err)
	}
	return nil
}

func (r *resultRepository) List(ctx context.Context, limit, offset int) ([]*domain.RoundResult, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("invalid pagination: limit=%d offset=%d", limit, offset)
	}

	query := `
		SELECT id, round, user_account, eth_return_pct, uni_return_pct, finalized_at
		FROM round_results
		ORDER BY round DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.q.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query round results: %w", err)
	}
	defer rows.Close()

	results := make([]*domain.RoundResult, 0, limit)
	for rows.Next() {
		var (
			result domain.RoundResult
			round  int64
			user   string
		)
		if err := rows.Scan(&result.ID, &round, &user, &result.ETHReturnPct, &result.UNIReturnPct, &result.FinalizedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round result: %w", err)
		}
		result.Round = uint64(round)
		result.User = domain.Account(user)
		result.FinalizedAt = result.FinalizedAt.UTC()
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round results: %w", err)
	}

	return results, nil
}

func (r *resultRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM round_results`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count round results: %w", err)
	}
	return n, nil
}
