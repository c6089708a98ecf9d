package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/cmsconsole/pkg/errors"
	"github.com/charlesng35/cmsconsole/pkg/validator"
)

const (
	maxTxAttempts  = 3
	txRetryBackoff = 25 * time.Millisecond
)

// isTransientError detects serialization failures, deadlocks and lock timeouts
// that succeed when the whole transaction is replayed.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		switch myErr.Number {
		case 1213, 1205:
			return true
		}
		return false
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "database is locked") ||
		strings.Contains(lower, "database table is locked") ||
		strings.Contains(lower, "sqlite_busy")
}

// runInTx executes fn inside a transaction, replaying it on transient failures.
// fn must only use the tx handle it receives.
func runInTx(ctx context.Context, db *gorm.DB, opts *sql.TxOptions, fn func(tx *gorm.DB) error) error {
	ctx = ensureContext(ctx)

	var txOpts []*sql.TxOptions
	if opts != nil {
		txOpts = append(txOpts, opts)
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn, txOpts...)
		if err == nil || !isTransientError(err) || attempt == maxTxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryBackoff):
		}
	}
	return err
}

// readTxOptions returns snapshot read options where the dialect supports them.
// SQLite has a single writer and serialises everything already.
func readTxOptions(db *gorm.DB) *sql.TxOptions {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	default:
		return nil
	}
}

// storageError converts a persistence failure into the retryable application error,
// leaving application errors untouched.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewStorageFailure(err)
}

// validationError maps validator output into the application validation error.
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.NewValidation(verrs.Error())
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.NewValidation(err.Error())
}
