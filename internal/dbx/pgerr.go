package dbx

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keycatalog/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
)

// Classify maps driver errors onto the common sentinels, keeping the original
// error in the chain. An id the column type cannot parse names no row, so it
// is not found. Unknown errors are wrapped with op only.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, common.ErrorNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, common.ErrorConflict, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, common.ErrorNotFound, pgErr.ConstraintName)
		case codeCheckViolation:
			return fmt.Errorf("%s: %w: %s", op, common.ErrorValidation, pgErr.ConstraintName)
		case codeInvalidText:
			return fmt.Errorf("%s: %w: %s", op, common.ErrorNotFound, pgErr.Message)
		}
	}

	return fmt.Errorf("%s: db error: %w", op, err)
}

// IsForeignKeyViolation reports whether err is a foreign key violation. On
// delete this means dependents still exist.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}
