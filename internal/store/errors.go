package store

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	pkgerrors "nexledger-reconciler/pkg/errors"
)

// mapError converts driver errors into DatabaseErrors
func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := pkgerrors.AsReconcilerError(err); ok {
		return err
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return pkgerrors.DatabaseError(pkgerrors.CodeDatabaseLocked, operation, err)
		case sqlite3.SQLITE_CONSTRAINT:
			return pkgerrors.DatabaseError(pkgerrors.CodeConstraintViolation, operation, err)
		}
	}
	return pkgerrors.DatabaseError(pkgerrors.CodeQueryFailed, operation, err)
}

// notFound reports a missing row as a reconciliation not_found error
func notFound(operation, table string, id int64) error {
	return pkgerrors.ReconciliationError(pkgerrors.CodeNotFound, operation,
		fmt.Errorf("%s row %d does not exist", table, id)).
		WithContext("table", table).
		WithContext("id", id)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
