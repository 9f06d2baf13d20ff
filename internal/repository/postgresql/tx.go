package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"extornos/internal/domain"

	"github.com/lib/pq"
)

type ctxtype string

const (
	trKey ctxtype = "tx"
)

var (
	uniqueConstraint pq.ErrorCode = "23505"
	lockNotAvailable pq.ErrorCode = "55P03"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTr(ctx context.Context) (*sql.Tx, bool) {
	tr, ok := ctx.Value(trKey).(*sql.Tx)
	return tr, ok
}

// conn returns the transaction carried by ctx, or db.
func conn(ctx context.Context, db *sql.DB) querier {
	if tr, ok := getTr(ctx); ok {
		return tr
	}
	return db
}

// withTx runs fn inside one transaction. lockTimeout bounds how long a row
// lock may be awaited; zero keeps the server default.
func withTx(ctx context.Context, db *sql.DB, lockTimeout time.Duration, fn func(txCtx context.Context) error) error {
	tr, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tr.Rollback()

	if lockTimeout > 0 {
		if _, err := tr.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", lockTimeout.Milliseconds())); err != nil {
			return err
		}
	}

	if err := fn(context.WithValue(ctx, trKey, tr)); err != nil {
		return err
	}
	return tr.Commit()
}

func mapPqError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch {
	case pqErr.Code == uniqueConstraint && pqErr.Constraint == "extornos_confirmation_token_key":
		return domain.ErrDuplicateToken
	case pqErr.Code == lockNotAvailable:
		return domain.ErrLockTimeout
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
