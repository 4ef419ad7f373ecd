package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories translate into domain errors.
const (
	SQLStateUniqueViolation    = "23505"
	SQLStateCheckViolation     = "23514"
	SQLStateExclusionViolation = "23P01"
)

// IsNoRows reports whether err is pgx's no-rows sentinel.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// SQLState returns the SQLSTATE carried by err, or "" if err is not a
// PostgreSQL error.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsExclusionViolation(err error) bool {
	return SQLState(err) == SQLStateExclusionViolation
}

func IsUniqueViolation(err error) bool {
	return SQLState(err) == SQLStateUniqueViolation
}

func IsCheckViolation(err error) bool {
	return SQLState(err) == SQLStateCheckViolation
}
