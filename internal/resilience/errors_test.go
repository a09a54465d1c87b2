package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("pool exhausted"))
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	wrapped := fmt.Errorf("upsert chunk: %w", NewTransientError(errors.New("busy")))
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_PgCodes(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"40001", true},
		{"40P01", true},
		{"57P01", true},
		{"08006", true},
		{"23505", false},
		{"22P02", false},
		{"42P01", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := fmt.Errorf("exec: %w", &pgconn.PgError{Code: tt.code})
			if got := IsTransient(err); got != tt.want {
				t.Errorf("IsTransient(%s) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestIsTransient_ConnectionReset(t *testing.T) {
	err := fmt.Errorf("write tcp: %w", syscall.ECONNRESET)
	if !IsTransient(err) {
		t.Error("expected ECONNRESET to be transient")
	}
}

func TestIsTransient_BrokenPipeMessage(t *testing.T) {
	if !IsTransient(errors.New("write: broken pipe")) {
		t.Error("expected broken pipe to be transient")
	}
}

func TestIsRowError(t *testing.T) {
	if !IsRowError(&pgconn.PgError{Code: "23505"}) {
		t.Error("unique violation should be a row error")
	}
	if !IsRowError(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "22003"})) {
		t.Error("numeric out of range should be a row error")
	}
	if IsRowError(&pgconn.PgError{Code: "08006"}) {
		t.Error("connection failure is not a row error")
	}
	if IsRowError(errors.New("plain")) {
		t.Error("non-pg error is not a row error")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pgconn.PgError{Code: CodeUniqueViolation}) {
		t.Error("expected unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation is not a unique violation")
	}
}
