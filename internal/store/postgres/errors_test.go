package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/storesync/internal/core"
)

func TestMapError_PgCodes(t *testing.T) {
	tests := []struct {
		name   string
		pgErr  *pgconn.PgError
		kind   core.ErrorKind
		column string
		value  any
		table  string
	}{
		{
			name: "unique violation",
			pgErr: &pgconn.PgError{
				Code:           "23505",
				ConstraintName: "gastos_pkey",
				Detail:         "Key (id_ga)=(12) already exists.",
			},
			kind:   core.KindUniqueness,
			column: "id_ga",
			value:  "12",
		},
		{
			name: "foreign key violation",
			pgErr: &pgconn.PgError{
				Code:           "23503",
				ConstraintName: "ingresos_codigo_fkey",
				Detail:         `Key (codigo)=(X1) is not present in table "codigos".`,
			},
			kind:   core.KindForeignKey,
			column: "codigo",
			value:  "X1",
			table:  "codigos",
		},
		{
			name:   "not null",
			pgErr:  &pgconn.PgError{Code: "23502", ColumnName: "hora"},
			kind:   core.KindValidation,
			column: "hora",
		},
		{
			name:  "check constraint",
			pgErr: &pgconn.PgError{Code: "23514", ConstraintName: "cant_positive"},
			kind:  core.KindValidation,
		},
		{
			name:  "invalid text representation",
			pgErr: &pgconn.PgError{Code: "22P02"},
			kind:  core.KindValidation,
		},
		{
			name:  "admin shutdown",
			pgErr: &pgconn.PgError{Code: "57P01"},
			kind:  core.KindConnection,
		},
		{
			name:  "deadlock",
			pgErr: &pgconn.PgError{Code: "40P01"},
			kind:  core.KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(fmt.Errorf("insert: %w", tt.pgErr))

			var se *core.StoreError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.kind, se.Kind)
			assert.Equal(t, tt.pgErr.Code, se.Code)
			assert.Equal(t, tt.pgErr.ConstraintName, se.Constraint)
			assert.Equal(t, tt.column, se.Column)
			assert.Equal(t, tt.value, se.Value)
			assert.Equal(t, tt.table, se.Table)
			assert.ErrorIs(t, err, tt.pgErr)
		})
	}
}

func TestMapError_Connection(t *testing.T) {
	for _, err := range []error{
		pgx.ErrTxClosed,
		context.DeadlineExceeded,
		errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"),
	} {
		var se *core.StoreError
		require.ErrorAs(t, mapError(err), &se, err.Error())
		assert.Equal(t, core.KindConnection, se.Kind, err.Error())
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.NoError(t, mapError(nil))
}
