package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"earnings-service/internal/apperr"

	"github.com/lib/pq"
)

// postgres error codes
const (
	pqUniqueViolation      = "23505"
	pqCheckViolation       = "23514"
	pqForeignKeyViolation  = "23503"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqRaiseException       = "P0001"
)

// translate annotates database errors with apperr kinds. Already typed
// errors and context cancellations pass through untouched.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: "not found", Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return &apperr.Error{Kind: apperr.KindConflict, Op: op, Message: "already exists", Err: err}
		case pqCheckViolation:
			if strings.HasPrefix(pqErr.Constraint, "sale_earnings") {
				return &apperr.Error{Kind: apperr.KindArithmetic, Op: op, Message: "earnings invariant violated", Err: err}
			}
			return &apperr.Error{Kind: apperr.KindValidation, Op: op, Message: "constraint violated", Err: err}
		case pqForeignKeyViolation:
			return &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: "referenced row missing", Err: err}
		case pqRaiseException:
			return &apperr.Error{Kind: apperr.KindConflict, Op: op, Message: "rejected by database", Err: err}
		case pqSerializationFailure, pqDeadlockDetected:
			return apperr.Storage(op, err)
		}
	}
	return apperr.Storage(op, err)
}

// isUniqueViolation reports whether err is a unique constraint failure on constraint
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != pqUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
