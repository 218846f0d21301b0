// Package repositories is the data-access layer over the relational
// control-plane tables described in the data model: SqlPattern,
// ObjectMetadata, ColumnMetadata, FunctionMetadata, DataSource, and the
// read-only captured-log/normalisation-error tables. Every repository
// accepts a Querier so callers can run a sequence of repository calls
// inside one transaction (a pgx.Tx) or directly against the pool.
package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/darkcatc/pglumilineage/pkg/apperrors"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting a
// repository method run standalone or as part of a caller-managed
// transaction without duplicating its SQL.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// mapPgError translates a pgx/postgres error into the apperrors
// sentinel the callers of this package are expected to check with
// errors.Is, so no repository caller needs to know a Postgres error
// code.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperrors.ErrConflict
	}
	return err
}
