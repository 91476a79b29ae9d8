package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsLockConflictPostgresCodes(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := fmt.Errorf("update membership: %w", &pgconn.PgError{Code: code})
		if !IsLockConflict(err) {
			t.Fatalf("sqlstate %s should be a lock conflict", code)
		}
	}
	if IsLockConflict(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("unique violation should not be a lock conflict")
	}
}

func TestIsLockConflictSQLite(t *testing.T) {
	if !IsLockConflict(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Fatalf("sqlite busy should be a lock conflict")
	}
	if IsLockConflict(errors.New("no such table: memberships")) {
		t.Fatalf("schema error should not be a lock conflict")
	}
	if IsLockConflict(nil) {
		t.Fatalf("nil should not be a lock conflict")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{err: &pgconn.PgError{Code: "23505"}, want: true},
		{err: gorm.ErrDuplicatedKey, want: true},
		{err: errors.New("constraint failed: UNIQUE constraint failed: memberships.voucher_code (2067)"), want: true},
		{err: errors.New("record not found"), want: false},
		{err: nil, want: false},
	}
	for _, tc := range cases {
		if got := IsUniqueViolation(tc.err); got != tc.want {
			t.Fatalf("IsUniqueViolation(%v) want %v got %v", tc.err, tc.want, got)
		}
	}
}
