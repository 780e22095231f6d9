package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// IntegrityKind tells which constraint the storage engine rejected.
type IntegrityKind int

const (
	IntegrityUnknown IntegrityKind = iota
	IntegrityUnique
	IntegrityForeignKey
	IntegrityCheck
	IntegrityNotNull
)

func (k IntegrityKind) String() string {
	switch k {
	case IntegrityUnique:
		return "unique"
	case IntegrityForeignKey:
		return "foreign_key"
	case IntegrityCheck:
		return "check"
	case IntegrityNotNull:
		return "not_null"
	default:
		return "unknown"
	}
}

// PostgreSQL SQLSTATE codes of class 23 (integrity constraint violation).
const (
	pqNotNullViolation    = "23502"
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqCheckViolation      = "23514"
)

// IntegrityError is returned when a statement or commit violates a constraint.
type IntegrityError struct {
	Kind       IntegrityKind
	Constraint string
	Err        error
}

func (e *IntegrityError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("integrity violation (%s on %s): %v", e.Kind, e.Constraint, e.Err)
	}
	return fmt.Sprintf("integrity violation (%s): %v", e.Kind, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsIntegrity reports whether err is any constraint violation.
func IsIntegrity(err error) bool {
	var ierr *IntegrityError
	return errors.As(err, &ierr)
}

// IsUniqueViolation reports whether err is a unique or primary key violation.
func IsUniqueViolation(err error) bool {
	return isKind(err, IntegrityUnique)
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return isKind(err, IntegrityForeignKey)
}

func isKind(err error, kind IntegrityKind) bool {
	var ierr *IntegrityError
	return errors.As(err, &ierr) && ierr.Kind == kind
}

// classify converts driver errors into *IntegrityError, or returns nil when
// err is not a constraint violation.
func classify(err error) *IntegrityError {
	var ierr *IntegrityError
	if errors.As(err, &ierr) {
		return ierr
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		kind := IntegrityUnknown
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			kind = IntegrityUnique
		case pqForeignKeyViolation:
			kind = IntegrityForeignKey
		case pqCheckViolation:
			kind = IntegrityCheck
		case pqNotNullViolation:
			kind = IntegrityNotNull
		default:
			if pqErr.Code.Class() != "23" {
				return nil
			}
		}
		return &IntegrityError{Kind: kind, Constraint: pqErr.Constraint, Err: err}
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code&0xff != sqlite3lib.SQLITE_CONSTRAINT {
			return nil
		}
		kind := IntegrityUnknown
		switch code {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			kind = IntegrityUnique
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			kind = IntegrityForeignKey
		case sqlite3lib.SQLITE_CONSTRAINT_TRIGGER:
			// ON DELETE RESTRICT is enforced by SQLite's internal FK trigger
			if strings.Contains(sqliteErr.Error(), "FOREIGN KEY") {
				kind = IntegrityForeignKey
			}
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			kind = IntegrityCheck
		case sqlite3lib.SQLITE_CONSTRAINT_NOTNULL:
			kind = IntegrityNotNull
		}
		return &IntegrityError{Kind: kind, Err: err}
	}

	return nil
}
