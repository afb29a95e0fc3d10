package sqlite

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/JonMunkholm/storesync/internal/core"
)

// mapError classifies a go-sqlite3 error into a *core.StoreError.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var sqErr sqlite3.Error
	if !errors.As(err, &sqErr) {
		return core.Classify(err)
	}

	se := &core.StoreError{Kind: core.KindUnknown, Code: sqErr.ExtendedCode.Error(), Err: err}
	switch sqErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		se.Kind = core.KindUniqueness
		se.Column, se.Constraint = constraintColumns(sqErr.Error())
	case sqlite3.ErrConstraintForeignKey:
		se.Kind = core.KindForeignKey
	case sqlite3.ErrConstraintNotNull, sqlite3.ErrConstraintCheck:
		se.Kind = core.KindValidation
		se.Column, _ = constraintColumns(sqErr.Error())
	default:
		switch sqErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			se.Kind = core.KindConnection
		case sqlite3.ErrMismatch, sqlite3.ErrTooBig, sqlite3.ErrRange:
			se.Kind = core.KindValidation
		}
	}
	return se
}

// constraintColumns parses "UNIQUE constraint failed: gastos.id_ga" into the
// column list and a table.columns constraint label.
func constraintColumns(msg string) (column, constraint string) {
	_, detail, ok := strings.Cut(msg, "constraint failed: ")
	if !ok {
		return "", ""
	}
	var cols []string
	for _, part := range strings.Split(detail, ", ") {
		_, col, found := strings.Cut(part, ".")
		if !found {
			col = part
		}
		cols = append(cols, col)
	}
	return strings.Join(cols, ", "), detail
}

// withForeignKey fills in the column and referenced table of a foreign key
// violation, which SQLite does not report, when the entity declares a
// single foreign key.
func withForeignKey(def *core.EntityDefinition, err error) error {
	var se *core.StoreError
	if !errors.As(err, &se) || se.Kind != core.KindForeignKey || len(def.ForeignKeys) != 1 {
		return err
	}
	fk := def.ForeignKeys[0]
	se.Column = fk.Column
	se.Table = fk.References
	return se
}
