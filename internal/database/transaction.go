package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TxFunc runs inside a transaction. A non-nil return rolls the
// transaction back; nil commits it.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// TxManager wraps a pool with commit-or-rollback transaction handling.
type TxManager struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewTxManager creates a transaction manager over the given pool.
func NewTxManager(pool *pgxpool.Pool, logger *zap.Logger) *TxManager {
	return &TxManager{pool: pool, logger: logger}
}

// WithTransaction begins a transaction, runs fn, and commits if fn
// returns nil. Any error from fn or from commit is returned with the
// transaction rolled back.
func (tm *TxManager) WithTransaction(ctx context.Context, fn TxFunc) error {
	tx, err := tm.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	// Rollback after a successful commit returns ErrTxClosed; anything
	// else is worth surfacing in the logs.
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			tm.logger.Error("transaction rollback failed", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
