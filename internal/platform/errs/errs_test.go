package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsDuplicateKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "sentinel_wrapped", err: fmt.Errorf("create: %w", ErrDuplicateKey), want: true},
		{name: "gorm_translated", err: gorm.ErrDuplicatedKey, want: true},
		{name: "pg_unique", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "pg_other", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "sqlite_message", err: errors.New("UNIQUE constraint failed: listing_record.source, listing_record.external_id"), want: true},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsDuplicateKey(tc.err); got != tc.want {
				t.Fatalf("IsDuplicateKey(%v)=%v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
