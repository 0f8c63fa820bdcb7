package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind is the small error taxonomy every driver error gets classified
// into before it leaves the storage gateway, so that higher layers never
// inspect a driver-specific type.
type ErrorKind int

const (
	// Other covers any error not otherwise classified.
	Other ErrorKind = iota
	// DuplicateKey is a unique-constraint violation; Column names the
	// affected logical column per the mapping table below.
	DuplicateKey
	// Deadlock is a serialization failure or detected deadlock.
	Deadlock
	// Connection covers broken/refused/timed-out connections.
	Connection
	// Syntax covers malformed SQL — a programmer error, never user input.
	Syntax
	// NotFound reports a query that was expected to return a row but
	// returned none (pgx.ErrNoRows).
	NotFound
)

func (k ErrorKind) String() string {
	switch k {
	case DuplicateKey:
		return "duplicate_key"
	case Deadlock:
		return "deadlock"
	case Connection:
		return "connection"
	case Syntax:
		return "syntax"
	case NotFound:
		return "not_found"
	default:
		return "other"
	}
}

// Error is the classified form of a driver error. Column is populated only
// for DuplicateKey and names the logical column the caller should map to a
// protocol error code.
type Error struct {
	Kind    ErrorKind
	Column  string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("storage: %s (%s): %s", e.Kind, e.Column, e.Message)
	}
	return fmt.Sprintf("storage: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Classify maps a driver error to the storage error taxonomy by switching
// on pgconn.PgError.Code; failed connection attempts and timeouts that
// carry no server code are classified as Connection.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &Error{Kind: NotFound, Message: err.Error(), cause: err}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return &Error{Kind: Connection, Message: err.Error(), cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &Error{
			Kind:    classifyPgCode(pgErr.Code),
			Column:  duplicateColumn(pgErr),
			Message: pgErr.Message,
			cause:   err,
		}
	}

	return &Error{Kind: Other, Message: err.Error(), cause: err}
}

func classifyPgCode(code string) ErrorKind {
	switch code {
	case "23505": // unique_violation
		return DuplicateKey
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return Deadlock
	case "08000", "08003", "08006", "08001", "08004": // connection_exception family
		return Connection
	case "42601", "42P01", "42703": // syntax_error, undefined_table, undefined_column
		return Syntax
	default:
		return Other
	}
}

// duplicateColumn inspects the constraint name pgx surfaces for a
// unique_violation and maps it to the logical column name the schema
// contract expects. Constraint names are trusted (schema-authored), never
// user input.
func duplicateColumn(pgErr *pgconn.PgError) string {
	if pgErr.Code != "23505" {
		return ""
	}
	name := strings.ToLower(pgErr.ConstraintName)
	switch {
	case strings.Contains(name, "email"):
		return "email"
	case strings.Contains(name, "uuid"):
		return "uuid"
	case strings.Contains(name, "origin_client"):
		return "origin_client_object_id"
	default:
		return name
	}
}

// Is reports whether err was classified as kind.
func Is(err error, kind ErrorKind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
