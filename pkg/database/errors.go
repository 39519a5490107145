package database

import (
	"strings"

	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/lib/pq"
)

// Postgres error codes the ledger cares about.
const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeQueryCanceled        = "57014"
	codeCheckViolation       = "23514"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeNotNullViolation     = "23502"
	codeInvalidTextRep       = "22P02"
)

// MapPQError converts a PostgreSQL error anywhere in err's chain to an AppError.
// Returns nil if there is no pq.Error or the code has no mapping.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case codeLockNotAvailable:
		return errors.Retryable(err, "lock_timeout")
	case codeDeadlockDetected:
		return errors.Retryable(err, "deadlock")
	case codeSerializationFailure:
		return errors.Retryable(err, "serialization_failure")
	case codeQueryCanceled:
		return errors.Retryable(err, "statement_timeout")

	case codeCheckViolation:
		return mapCheckConstraint(pqErr)

	case codeUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case codeForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	// an id that does not parse as a uuid cannot match any row
	case codeInvalidTextRep:
		return errors.NotFound("record")

	case codeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// IsRetryable reports whether err is a transient lock or serialization failure.
func IsRetryable(err error) bool {
	if errors.Is(err, errors.ErrRetryable) {
		return true
	}
	mapped := MapPQError(err)
	return mapped != nil && errors.Is(mapped, errors.ErrRetryable)
}

// mapCheckConstraint maps ledger CHECK constraints. They are a backstop:
// the service layer checks balances under lock before writing.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "allocation_within_added"),
		strings.Contains(constraint, "available_non_negative"):
		return errors.InsufficientStock("ledger constraint rejected the movement: "+constraint, "", "", "")

	case strings.Contains(constraint, "deducted_within_added"):
		return errors.InsufficientBalance("ledger constraint rejected the deduction: "+constraint, "", "", "")

	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: pending, approved, rejected, delivered",
		})

	case strings.Contains(constraint, "rating_range"):
		return errors.Validation(map[string]string{
			"rating": "must be between 1 and 5",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "feedback_request"):
		return "feedback for this request was already submitted"
	case strings.Contains(constraint, "cell_balances"):
		return "a balance for this cell and product already exists"
	case strings.Contains(constraint, "farmer_balances"):
		return "a balance for this farmer and product already exists"
	default:
		return "a record with these values already exists"
	}
}
