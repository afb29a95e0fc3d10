package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "postgres duplicate key", err: errors.New(`ERROR: duplicate key value violates unique constraint "clientes_pkey" (SQLSTATE 23505)`), wantCode: "DB001"},
		{name: "sqlite unique constraint", err: errors.New("UNIQUE constraint failed: clientes.id"), wantCode: "DB002"},
		{name: "foreign key", err: errors.New(`insert or update on table "ingresos" violates foreign key constraint "ingresos_codigo_fkey"`), wantCode: "DB003"},
		{name: "connection refused", err: errors.New("dial tcp 10.0.0.4:5432: connect: connection refused"), wantCode: "DB004"},
		{name: "deadline before generic timeout", err: context.DeadlineExceeded, wantCode: "REQ002"},
		{name: "not null", err: errors.New(`null value in column "hora" violates not-null constraint`), wantCode: "VAL001"},
		{name: "required field from processor", err: errors.New("validation: required field costo is missing"), wantCode: "VAL001"},
		{name: "delete without identity", err: errors.New("validation: delete requires an identity key"), wantCode: "VAL003"},
		{name: "unknown entity", err: fmt.Errorf("%w: mesas", ErrUnknownEntity), wantCode: "SYNC001"},
		{name: "busy", err: ErrTooManyBatches, wantCode: "SYNC003"},
		{name: "chunk abort", err: errors.New("chunk rolled back: conn closed"), wantCode: "SYNC005"},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
		{name: "case insensitive", err: errors.New("DUPLICATE KEY value"), wantCode: "DB001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("duplicate key value violates"))

	expected := "A record with this ID already exists (Code: DB001). Resend the record with a newer utime to overwrite it"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "known error is user facing", err: errors.New("duplicate key"), want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	techErr := errors.New("violates foreign key constraint")
	userErr := NewUserError(techErr)
	if userErr.Error() != "Referenced record does not exist" {
		t.Errorf("Error() = %q, want user message", userErr.Error())
	}
	if !errors.Is(userErr, techErr) {
		t.Error("Unwrap() should return original error")
	}
}
