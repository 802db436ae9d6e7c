package connection

import (
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// SQLState returns the five character SQLSTATE reported by the server, or "" if the
// error did not originate from a postgres server response.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// ErrorClass names the SQLSTATE class of code for use in diagnostics.
func ErrorClass(code string) string {
	switch {
	case code == "":
		return "client"
	case pgerrcode.IsConnectionException(code):
		return "connection_exception"
	case pgerrcode.IsDataException(code):
		return "data_exception"
	case pgerrcode.IsIntegrityConstraintViolation(code):
		return "integrity_constraint_violation"
	case pgerrcode.IsTransactionRollback(code):
		return "transaction_rollback"
	case pgerrcode.IsInsufficientResources(code):
		return "insufficient_resources"
	case pgerrcode.IsOperatorIntervention(code):
		return "operator_intervention"
	case code == pgerrcode.UndefinedTable || code == pgerrcode.UndefinedColumn:
		return "undefined_object"
	default:
		return "other"
	}
}
