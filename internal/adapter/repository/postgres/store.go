package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/simaogato/topvoter-backend/internal/domain"
)

// storeLockKey serializes every Atomic call across all server processes sharing the database
const storeLockKey int64 = 0x746f70766f7465

// querier is satisfied by *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements domain.Store on PostgreSQL
type Store struct {
	db *DB
}

// NewStore creates a new PostgreSQL-backed store
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Atomic runs fn inside one database transaction holding the store-wide advisory lock
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	// Released automatically at commit or rollback
	if _, err := dbTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, storeLockKey); err != nil {
		return fmt.Errorf("failed to acquire store lock: %w", err)
	}

	if err := fn(ctx, newTx(dbTx)); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// View runs fn inside a read-only repeatable-read transaction
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer dbTx.Rollback()

	return fn(ctx, newTx(dbTx))
}

type tx struct {
	ledger      *ledgerRepository
	memberships *membershipRepository
	rounds      *roundRepository
	results     *resultRepository
}

func newTx(q querier) *tx {
	return &tx{
		ledger:      &ledgerRepository{q: q},
		memberships: &membershipRepository{q: q},
		rounds:      &roundRepository{q: q},
		results:     &resultRepository{q: q},
	}
}

func (t *tx) Ledger() domain.LedgerRepository          { return t.ledger }
func (t *tx) Memberships() domain.MembershipRepository { return t.memberships }
func (t *tx) Rounds() domain.RoundRepository           { return t.rounds }
func (t *tx) Results() domain.ResultRepository         { return t.results }
