package ledger

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the store raises for transient contention.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// stockIdentityConstraint is the unique index over the stock identity tuple.
const stockIdentityConstraint = "uq_stock_records_identity"

// IsRetryable reports whether the whole read-validate-write transaction
// should be rerun. A unique violation on the stock identity index means two
// first movements raced to create the same row; the retry will find and lock
// the winner's row.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	case codeUniqueViolation:
		return pgErr.ConstraintName == stockIdentityConstraint
	}
	return false
}
