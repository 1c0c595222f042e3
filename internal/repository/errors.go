// Package repository implements PostgreSQL data access with pgx. Queries
// return the package sentinels below instead of driver errors so services
// and their test doubles share one error vocabulary.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert lost to an existing row, for
	// example a second in-progress attempt or a second result for the same
	// exam and student.
	ErrDuplicate = errors.New("record already exists")
)

// notFound translates pgx's no-rows error into the package sentinel.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
