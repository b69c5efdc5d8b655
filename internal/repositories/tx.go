package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
	}

	return false
}

// runInTx executes fn inside a transaction, retrying the whole unit when
// postgres aborts it with a serialization failure or deadlock. Any other
// error from fn rolls back and is returned unchanged.
func runInTx(ctx context.Context, db *sql.DB, maxRetries uint64, fn func(*sql.Tx) error) error {

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)

	attempt := 0

	return backoff.Retry(func() error {
		attempt++

		err := execTx(ctx, db, fn)
		if err == nil {
			return nil
		}

		if isRetryableTxError(err) {
			slog.Warn("Retrying aborted transaction", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			return err
		}

		return backoff.Permanent(err)
	}, policy)
}

func execTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {

	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Error("Failed to rollback transaction", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
