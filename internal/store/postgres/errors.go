package postgres

import (
	"errors"
	"net"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/storesync/internal/core"
)

var (
	// Key (codigo)=(X1) is not present in table "codigos".
	fkDetail = regexp.MustCompile(`Key \((.+?)\)=\((.*?)\) is not present in table "([^"]+)"`)
	// Key (id_ga)=(12) already exists.
	keyDetail = regexp.MustCompile(`Key \((.+?)\)=\((.*?)\)`)
)

// mapError classifies a pgx error into a *core.StoreError.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgError(pgErr, err)
	}

	se := &core.StoreError{Kind: core.KindUnknown, Err: err}
	var netErr net.Error
	switch {
	case pgconn.Timeout(err), pgconn.SafeToRetry(err), errors.As(err, &netErr), errors.Is(err, pgx.ErrTxClosed):
		se.Kind = core.KindConnection
	default:
		return core.Classify(err)
	}
	return se
}

func pgError(pgErr *pgconn.PgError, err error) *core.StoreError {
	se := &core.StoreError{
		Kind:       core.KindUnknown,
		Code:       pgErr.Code,
		Constraint: pgErr.ConstraintName,
		Column:     pgErr.ColumnName,
		Err:        err,
	}

	switch {
	case pgErr.Code == "23505":
		se.Kind = core.KindUniqueness
		if m := keyDetail.FindStringSubmatch(pgErr.Detail); m != nil {
			se.Column, se.Value = m[1], m[2]
		}
	case pgErr.Code == "23503":
		se.Kind = core.KindForeignKey
		if m := fkDetail.FindStringSubmatch(pgErr.Detail); m != nil {
			se.Column, se.Value, se.Table = m[1], m[2], m[3]
		}
	case pgErr.Code == "23502", pgErr.Code == "23514":
		se.Kind = core.KindValidation
	case strings.HasPrefix(pgErr.Code, "22"):
		// Data exceptions: bad input syntax, value out of range.
		se.Kind = core.KindValidation
	case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
		se.Kind = core.KindConnection
	}
	return se
}
