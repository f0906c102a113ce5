package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/banana-api/internal/store"
)

// SQLSTATE codes the task store distinguishes.
const (
	notNullViolationCode     = "23502"
	uniqueViolationCode      = "23505"
	checkViolationCode       = "23514"
	serializationFailureCode = "40001"
	deadlockDetectedCode     = "40P01"
)

type sqlState struct {
	sentinel error
	describe func(*pgconn.PgError) string
}

var sqlStates = map[string]sqlState{
	notNullViolationCode: {store.ErrInvalidEntity, func(e *pgconn.PgError) string {
		return "missing value for " + e.ColumnName
	}},
	uniqueViolationCode: {store.ErrInvalidEntity, func(e *pgconn.PgError) string {
		return "duplicate key " + e.ConstraintName
	}},
	checkViolationCode: {store.ErrInvalidEntity, func(e *pgconn.PgError) string {
		return "constraint " + e.ConstraintName + " rejected the row"
	}},
	// A lost serialization race means another writer got there first, the
	// same as a version mismatch.
	serializationFailureCode: {store.ErrStaleWrite, func(*pgconn.PgError) string {
		return "serialization failure"
	}},
	deadlockDetectedCode: {store.ErrStaleWrite, func(*pgconn.PgError) string {
		return "deadlock"
	}},
}

// MapError translates driver errors into store sentinels, keeping the
// original error in the chain. Unrecognized errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrTaskNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	state, ok := sqlStates[pgErr.Code]
	if !ok {
		return err
	}
	return fmt.Errorf("%w: %s: %w", state.sentinel, state.describe(pgErr), err)
}
