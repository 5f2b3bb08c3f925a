package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS biodata (
		biodata_id BIGSERIAL PRIMARY KEY,
		owner_email TEXT NOT NULL,
		biodata_type TEXT NOT NULL CHECK (biodata_type IN ('Male', 'Female')),
		name TEXT NOT NULL,
		profile_image TEXT NOT NULL DEFAULT '',
		date_of_birth TEXT NOT NULL DEFAULT '',
		height TEXT NOT NULL DEFAULT '',
		weight TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL CHECK (age >= 0),
		occupation TEXT NOT NULL DEFAULT '',
		race TEXT NOT NULL DEFAULT '',
		father_name TEXT NOT NULL DEFAULT '',
		mother_name TEXT NOT NULL DEFAULT '',
		permanent_division TEXT NOT NULL DEFAULT '',
		present_division TEXT NOT NULL DEFAULT '',
		expected_partner_age TEXT NOT NULL DEFAULT '',
		expected_partner_height TEXT NOT NULL DEFAULT '',
		expected_partner_weight TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		mobile_number TEXT NOT NULL DEFAULT '',
		archived_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT biodata_owner_email_key UNIQUE (owner_email)
	)`,
	`CREATE TABLE IF NOT EXISTS contact_payments (
		payment_id TEXT PRIMARY KEY,
		payer_email TEXT NOT NULL,
		target_biodata_id BIGINT NOT NULL REFERENCES biodata (biodata_id),
		amount BIGINT NOT NULL CHECK (amount > 0),
		currency TEXT NOT NULL,
		processor_reference TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS premium_requests (
		request_id UUID PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES contact_payments (payment_id),
		payer_email TEXT NOT NULL,
		target_biodata_id BIGINT NOT NULL REFERENCES biodata (biodata_id),
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved')),
		approved_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT premium_requests_payment_id_key UNIQUE (payment_id),
		CONSTRAINT premium_requests_approved_at_check CHECK ((status = 'approved') = (approved_at IS NOT NULL))
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS premium_requests_approved_pair_idx
		ON premium_requests (payer_email, target_biodata_id)
		WHERE status = 'approved'`,
	`CREATE INDEX IF NOT EXISTS premium_requests_payer_idx ON premium_requests (payer_email)`,
	`CREATE TABLE IF NOT EXISTS favorites (
		id UUID PRIMARY KEY,
		owner_email TEXT NOT NULL,
		biodata_id BIGINT NOT NULL REFERENCES biodata (biodata_id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT favorites_owner_biodata_key UNIQUE (owner_email, biodata_id)
	)`,
	`CREATE TABLE IF NOT EXISTS success_stories (
		id UUID PRIMARY KEY,
		submitted_by TEXT NOT NULL,
		self_biodata_id BIGINT NOT NULL,
		partner_biodata_id BIGINT NOT NULL,
		story TEXT NOT NULL,
		couple_image_link TEXT NOT NULL DEFAULT '',
		marriage_date TIMESTAMPTZ,
		review_stars INTEGER CHECK (review_stars BETWEEN 1 AND 5),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the service tables when they are missing. Every statement is idempotent.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
