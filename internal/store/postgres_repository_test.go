package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestConstraintErrorMapsNamedUniqueViolations(t *testing.T) {
	other := errors.New("connection reset")
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "approved pair index",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: approvedPairIndex},
			want: ErrPairAlreadyApproved,
		},
		{
			name: "wrapped approved pair index",
			err:  fmt.Errorf("insert premium request: %w", &pgconn.PgError{Code: "23505", ConstraintName: approvedPairIndex}),
			want: ErrPairAlreadyApproved,
		},
		{
			name: "biodata owner email key",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: biodataOwnerEmailKey},
			want: ErrBiodataExists,
		},
		{
			name: "other unique constraint",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "favorites_owner_biodata_key"},
			want: nil,
		},
		{
			name: "check violation on the pair index name",
			err:  &pgconn.PgError{Code: "23514", ConstraintName: approvedPairIndex},
			want: nil,
		},
		{
			name: "no rows",
			err:  pgx.ErrNoRows,
			want: pgx.ErrNoRows,
		},
		{
			name: "non postgres error",
			err:  other,
			want: other,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := constraintError(tt.err)
			if tt.want == nil {
				if errors.Is(got, ErrPairAlreadyApproved) || errors.Is(got, ErrBiodataExists) {
					t.Fatalf("expected error to pass through, got %v", got)
				}
				if got != tt.err {
					t.Fatalf("expected original error, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsUniqueViolationWithoutConstraintName(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "anything"}, "") {
		t.Fatalf("expected any unique violation to match an empty constraint")
	}
	if isUniqueViolation(errors.New("23505"), "") {
		t.Fatalf("expected plain errors not to match")
	}
	if isUniqueViolation(nil, approvedPairIndex) {
		t.Fatalf("expected nil not to match")
	}
}
