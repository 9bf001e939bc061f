package errors_test

import (
	stderrors "errors"
	"testing"

	apperr "github.com/framestack/framestack/internal/errors"
)

func TestWrappersMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", apperr.Validationf("bad input %d", 1), apperr.ErrValidation},
		{"not found", apperr.NotFoundf("frame %q", "x"), apperr.ErrNotFound},
		{"invalid state", apperr.InvalidStatef("already closed"), apperr.ErrInvalidState},
		{"operation", apperr.Operationf(stderrors.New("disk full"), "insert"), apperr.ErrOperationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !apperr.Is(tt.err, tt.sentinel) {
				t.Errorf("%v does not match its sentinel", tt.err)
			}
		})
	}
}

func TestOperationf_PreservesCause(t *testing.T) {
	cause := stderrors.New("unique constraint")
	err := apperr.Operationf(cause, "create frame")
	if !apperr.Is(err, cause) {
		t.Errorf("%v lost its cause", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", stderrors.New("SQLITE_BUSY: database is busy"), true},
		{"locked", stderrors.New("database is locked"), true},
		{"table locked", stderrors.New("database table is locked"), true},
		{"constraint", stderrors.New("UNIQUE constraint failed"), false},
		{"wrapped busy", apperr.Operationf(stderrors.New("database is locked"), "touch"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperr.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
