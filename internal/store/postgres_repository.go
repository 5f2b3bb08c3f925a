/**
 * @description
 * PostgreSQL implementation of the Repository interface using pgx.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pool.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soullink/entitlement-service/internal/domain"
)

const (
	approvedPairIndex    = "premium_requests_approved_pair_idx"
	biodataOwnerEmailKey = "biodata_owner_email_key"
)

const biodataColumns = `
	biodata_id, owner_email, biodata_type, name, profile_image, date_of_birth, height, weight,
	age, occupation, race, father_name, mother_name, permanent_division, present_division,
	expected_partner_age, expected_partner_height, expected_partner_weight,
	contact_email, mobile_number, archived_at, created_at, updated_at`

const premiumRequestColumns = `request_id, payment_id, payer_email, target_biodata_id, status, approved_at, created_at`

const paymentColumns = `payment_id, payer_email, target_biodata_id, amount, currency, processor_reference, created_at`

// PostgresRepository is the pgx-backed Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository on top of a connection pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanBiodata(row pgx.Row) (*domain.Biodata, error) {
	var b domain.Biodata
	if err := row.Scan(
		&b.BiodataID,
		&b.OwnerEmail,
		&b.BiodataType,
		&b.Name,
		&b.ProfileImage,
		&b.DateOfBirth,
		&b.Height,
		&b.Weight,
		&b.Age,
		&b.Occupation,
		&b.Race,
		&b.FatherName,
		&b.MotherName,
		&b.PermanentDivision,
		&b.PresentDivision,
		&b.ExpectedPartnerAge,
		&b.ExpectedPartnerHeight,
		&b.ExpectedPartnerWeight,
		&b.ContactEmail,
		&b.MobileNumber,
		&b.ArchivedAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func scanPremiumRequest(row pgx.Row) (*domain.PremiumRequest, error) {
	var req domain.PremiumRequest
	if err := row.Scan(
		&req.RequestID,
		&req.PaymentID,
		&req.PayerEmail,
		&req.TargetBiodataID,
		&req.Status,
		&req.ApprovedAt,
		&req.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	if err := row.Scan(
		&p.PaymentID,
		&p.PayerEmail,
		&p.TargetBiodataID,
		&p.Amount,
		&p.Currency,
		&p.ProcessorReference,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// constraintError translates unique violations on named constraints into store errors.
// Anything else is returned unchanged.
func constraintError(err error) error {
	switch {
	case isUniqueViolation(err, approvedPairIndex):
		return ErrPairAlreadyApproved
	case isUniqueViolation(err, biodataOwnerEmailKey):
		return ErrBiodataExists
	}
	return err
}

// CreateBiodata inserts a profile and assigns its sequential id.
func (r *PostgresRepository) CreateBiodata(ctx context.Context, b *domain.Biodata) error {
	query := `
		INSERT INTO biodata (
			owner_email, biodata_type, name, profile_image, date_of_birth, height, weight,
			age, occupation, race, father_name, mother_name, permanent_division, present_division,
			expected_partner_age, expected_partner_height, expected_partner_weight,
			contact_email, mobile_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING biodata_id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		b.OwnerEmail, b.BiodataType, b.Name, b.ProfileImage, b.DateOfBirth, b.Height, b.Weight,
		b.Age, b.Occupation, b.Race, b.FatherName, b.MotherName, b.PermanentDivision, b.PresentDivision,
		b.ExpectedPartnerAge, b.ExpectedPartnerHeight, b.ExpectedPartnerWeight,
		b.ContactEmail, b.MobileNumber,
	).Scan(&b.BiodataID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return constraintError(err)
	}
	return nil
}

// UpdateBiodata rewrites the owner-editable fields of a live profile.
func (r *PostgresRepository) UpdateBiodata(ctx context.Context, b *domain.Biodata) error {
	query := `
		UPDATE biodata
		SET biodata_type = $2,
		    name = $3,
		    profile_image = $4,
		    date_of_birth = $5,
		    height = $6,
		    weight = $7,
		    age = $8,
		    occupation = $9,
		    race = $10,
		    father_name = $11,
		    mother_name = $12,
		    permanent_division = $13,
		    present_division = $14,
		    expected_partner_age = $15,
		    expected_partner_height = $16,
		    expected_partner_weight = $17,
		    contact_email = $18,
		    mobile_number = $19,
		    updated_at = NOW()
		WHERE biodata_id = $1
		  AND archived_at IS NULL
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		b.BiodataID, b.BiodataType, b.Name, b.ProfileImage, b.DateOfBirth, b.Height, b.Weight,
		b.Age, b.Occupation, b.Race, b.FatherName, b.MotherName, b.PermanentDivision, b.PresentDivision,
		b.ExpectedPartnerAge, b.ExpectedPartnerHeight, b.ExpectedPartnerWeight,
		b.ContactEmail, b.MobileNumber,
	).Scan(&b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrBiodataNotFound
		}
		return err
	}
	return nil
}

// GetBiodata retrieves a live profile by id.
func (r *PostgresRepository) GetBiodata(ctx context.Context, biodataID int64) (*domain.Biodata, error) {
	query := `SELECT ` + biodataColumns + ` FROM biodata WHERE biodata_id = $1 AND archived_at IS NULL`
	b, err := scanBiodata(r.db.QueryRow(ctx, query, biodataID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBiodataNotFound
		}
		return nil, err
	}
	return b, nil
}

// FindBiodataByOwnerEmail retrieves the live profile owned by an account.
func (r *PostgresRepository) FindBiodataByOwnerEmail(ctx context.Context, ownerEmail string) (*domain.Biodata, error) {
	query := `SELECT ` + biodataColumns + ` FROM biodata WHERE owner_email = $1 AND archived_at IS NULL`
	b, err := scanBiodata(r.db.QueryRow(ctx, query, ownerEmail))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBiodataNotFound
		}
		return nil, err
	}
	return b, nil
}

// FindBiodataByIDs loads the live profiles among the given ids. Missing ids are absent from the map.
func (r *PostgresRepository) FindBiodataByIDs(ctx context.Context, biodataIDs []int64) (map[int64]domain.Biodata, error) {
	result := make(map[int64]domain.Biodata, len(biodataIDs))
	if len(biodataIDs) == 0 {
		return result, nil
	}

	query := `SELECT ` + biodataColumns + ` FROM biodata WHERE biodata_id = ANY($1) AND archived_at IS NULL`
	rows, err := r.db.Query(ctx, query, biodataIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBiodata(rows)
		if err != nil {
			return nil, err
		}
		result[b.BiodataID] = *b
	}
	return result, rows.Err()
}

// ListBiodata lists live profiles matching the filter.
func (r *PostgresRepository) ListBiodata(ctx context.Context, filter domain.BiodataFilter) ([]domain.Biodata, error) {
	conditions := []string{"archived_at IS NULL"}
	args := []interface{}{}

	addArg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.BiodataType != "" {
		conditions = append(conditions, "biodata_type = "+addArg(filter.BiodataType))
	}
	if filter.Division != "" {
		conditions = append(conditions, "permanent_division = "+addArg(filter.Division))
	}
	if filter.MinAge > 0 {
		conditions = append(conditions, "age >= "+addArg(filter.MinAge))
	}
	if filter.MaxAge > 0 {
		conditions = append(conditions, "age <= "+addArg(filter.MaxAge))
	}

	orderBy := "biodata_id ASC"
	switch filter.SortByAge {
	case "asc":
		orderBy = "age ASC, biodata_id ASC"
	case "desc":
		orderBy = "age DESC, biodata_id ASC"
	}

	query := `SELECT ` + biodataColumns + ` FROM biodata WHERE ` + strings.Join(conditions, " AND ") + ` ORDER BY ` + orderBy
	if filter.Limit > 0 {
		query += " LIMIT " + addArg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + addArg(filter.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.Biodata
	for rows.Next() {
		b, err := scanBiodata(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *b)
	}
	return profiles, rows.Err()
}

// ArchiveBiodata soft-deletes the owner's profile.
func (r *PostgresRepository) ArchiveBiodata(ctx context.Context, ownerEmail string, archivedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE biodata
		SET archived_at = $2,
		    updated_at = NOW()
		WHERE owner_email = $1
		  AND archived_at IS NULL
	`, ownerEmail, archivedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBiodataNotFound
	}
	return nil
}

// InsertPayment appends a payment to the ledger. A replayed payment id returns the stored row.
func (r *PostgresRepository) InsertPayment(ctx context.Context, p *domain.Payment) (bool, error) {
	query := `
		INSERT INTO contact_payments (payment_id, payer_email, target_biodata_id, amount, currency, processor_reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING ` + paymentColumns
	inserted, err := scanPayment(r.db.QueryRow(ctx, query,
		p.PaymentID, p.PayerEmail, p.TargetBiodataID, p.Amount, p.Currency, p.ProcessorReference,
	))
	if err == nil {
		*p = *inserted
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	existing, err := r.GetPayment(ctx, p.PaymentID)
	if err != nil {
		return false, err
	}
	*p = *existing
	return false, nil
}

// GetPayment retrieves a ledger row.
func (r *PostgresRepository) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM contact_payments WHERE payment_id = $1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

// ListPayments returns the full ledger, oldest first.
func (r *PostgresRepository) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM contact_payments ORDER BY created_at ASC, payment_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// InsertPremiumRequest creates the request for a payment unless one already exists,
// in which case req is overwritten with the stored row and false is returned.
func (r *PostgresRepository) InsertPremiumRequest(ctx context.Context, req *domain.PremiumRequest) (bool, error) {
	query := `
		INSERT INTO premium_requests (request_id, payment_id, payer_email, target_biodata_id, status, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING ` + premiumRequestColumns
	inserted, err := scanPremiumRequest(r.db.QueryRow(ctx, query,
		req.RequestID, req.PaymentID, req.PayerEmail, req.TargetBiodataID, req.Status, req.ApprovedAt,
	))
	if err == nil {
		*req = *inserted
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, constraintError(err)
	}

	existing, err := r.GetPremiumRequestByPaymentID(ctx, req.PaymentID)
	if err != nil {
		return false, err
	}
	*req = *existing
	return false, nil
}

// ApprovePremiumRequest promotes a pending request. Concurrent callers race on the
// row lock; only one sees the RETURNING row, the rest get (nil, nil).
func (r *PostgresRepository) ApprovePremiumRequest(ctx context.Context, paymentID string, approvedAt time.Time) (*domain.PremiumRequest, error) {
	query := `
		UPDATE premium_requests
		SET status = 'approved',
		    approved_at = $2
		WHERE payment_id = $1
		  AND status = 'pending'
		RETURNING ` + premiumRequestColumns
	req, err := scanPremiumRequest(r.db.QueryRow(ctx, query, paymentID, approvedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, constraintError(err)
	}
	return req, nil
}

// GetPremiumRequestByPaymentID retrieves the request created from a payment.
func (r *PostgresRepository) GetPremiumRequestByPaymentID(ctx context.Context, paymentID string) (*domain.PremiumRequest, error) {
	req, err := scanPremiumRequest(r.db.QueryRow(ctx, `SELECT `+premiumRequestColumns+` FROM premium_requests WHERE payment_id = $1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPremiumRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// FindApprovedPremiumRequest retrieves the approved request for a pair, if any.
func (r *PostgresRepository) FindApprovedPremiumRequest(ctx context.Context, payerEmail string, biodataID int64) (*domain.PremiumRequest, error) {
	query := `
		SELECT ` + premiumRequestColumns + `
		FROM premium_requests
		WHERE payer_email = $1
		  AND target_biodata_id = $2
		  AND status = 'approved'
	`
	req, err := scanPremiumRequest(r.db.QueryRow(ctx, query, payerEmail, biodataID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPremiumRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// FindPendingPremiumRequest retrieves the oldest pending request for a pair, if any.
func (r *PostgresRepository) FindPendingPremiumRequest(ctx context.Context, payerEmail string, biodataID int64) (*domain.PremiumRequest, error) {
	query := `
		SELECT ` + premiumRequestColumns + `
		FROM premium_requests
		WHERE payer_email = $1
		  AND target_biodata_id = $2
		  AND status = 'pending'
		ORDER BY created_at ASC, request_id ASC
		LIMIT 1
	`
	req, err := scanPremiumRequest(r.db.QueryRow(ctx, query, payerEmail, biodataID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPremiumRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

// ListPremiumRequests returns every request, oldest first.
func (r *PostgresRepository) ListPremiumRequests(ctx context.Context) ([]domain.PremiumRequest, error) {
	rows, err := r.db.Query(ctx, `SELECT `+premiumRequestColumns+` FROM premium_requests ORDER BY created_at ASC, request_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPremiumRequests(rows)
}

// ListApprovedPremiumRequests returns approved requests in approval order.
func (r *PostgresRepository) ListApprovedPremiumRequests(ctx context.Context, filter domain.PremiumRequestFilter) ([]domain.PremiumRequest, error) {
	conditions := []string{"status = 'approved'"}
	args := []interface{}{}
	if filter.PayerEmail != "" {
		args = append(args, filter.PayerEmail)
		conditions = append(conditions, fmt.Sprintf("payer_email = $%d", len(args)))
	}
	if filter.TargetBiodataID > 0 {
		args = append(args, filter.TargetBiodataID)
		conditions = append(conditions, fmt.Sprintf("target_biodata_id = $%d", len(args)))
	}

	query := `SELECT ` + premiumRequestColumns + ` FROM premium_requests WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY approved_at ASC, created_at ASC, request_id ASC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPremiumRequests(rows)
}

func collectPremiumRequests(rows pgx.Rows) ([]domain.PremiumRequest, error) {
	var requests []domain.PremiumRequest
	for rows.Next() {
		req, err := scanPremiumRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// InsertFavorite bookmarks a profile; false means the pair was already present.
func (r *PostgresRepository) InsertFavorite(ctx context.Context, f *domain.Favorite) (bool, error) {
	query := `
		INSERT INTO favorites (id, owner_email, biodata_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_email, biodata_id) DO NOTHING
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query, f.ID, f.OwnerEmail, f.BiodataID).Scan(&f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteFavorite removes a bookmark; false means nothing was removed.
func (r *PostgresRepository) DeleteFavorite(ctx context.Context, ownerEmail string, biodataID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM favorites WHERE owner_email = $1 AND biodata_id = $2`, ownerEmail, biodataID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListFavoritesByOwner returns the owner's bookmarks, newest first.
func (r *PostgresRepository) ListFavoritesByOwner(ctx context.Context, ownerEmail string) ([]domain.Favorite, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_email, biodata_id, created_at
		FROM favorites
		WHERE owner_email = $1
		ORDER BY created_at DESC, id ASC
	`, ownerEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favorites []domain.Favorite
	for rows.Next() {
		var f domain.Favorite
		if err := rows.Scan(&f.ID, &f.OwnerEmail, &f.BiodataID, &f.CreatedAt); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

// InsertSuccessStory appends a story.
func (r *PostgresRepository) InsertSuccessStory(ctx context.Context, story *domain.SuccessStory) error {
	query := `
		INSERT INTO success_stories (
			id, submitted_by, self_biodata_id, partner_biodata_id, story, couple_image_link, marriage_date, review_stars
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		story.ID, story.SubmittedBy, story.SelfBiodataID, story.PartnerBiodataID,
		story.Story, story.CoupleImageLink, story.MarriageDate, story.ReviewStars,
	).Scan(&story.CreatedAt)
}

// ListSuccessStories returns stories newest first.
func (r *PostgresRepository) ListSuccessStories(ctx context.Context, limit int) ([]domain.SuccessStory, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, submitted_by, self_biodata_id, partner_biodata_id, story, couple_image_link,
		       marriage_date, review_stars, created_at
		FROM success_stories
		ORDER BY created_at DESC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []domain.SuccessStory
	for rows.Next() {
		var s domain.SuccessStory
		if err := rows.Scan(
			&s.ID,
			&s.SubmittedBy,
			&s.SelfBiodataID,
			&s.PartnerBiodataID,
			&s.Story,
			&s.CoupleImageLink,
			&s.MarriageDate,
			&s.ReviewStars,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		stories = append(stories, s)
	}
	return stories, rows.Err()
}

// CountSiteStats counts live profiles per type and all success stories.
func (r *PostgresRepository) CountSiteStats(ctx context.Context) (domain.SiteStats, error) {
	var stats domain.SiteStats
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE biodata_type = 'Male'),
			COUNT(*) FILTER (WHERE biodata_type = 'Female'),
			COUNT(*)
		FROM biodata
		WHERE archived_at IS NULL
	`).Scan(&stats.MaleBiodata, &stats.FemaleBiodata, &stats.TotalBiodata)
	if err != nil {
		return domain.SiteStats{}, err
	}

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM success_stories`).Scan(&stats.Marriages); err != nil {
		return domain.SiteStats{}, err
	}
	return stats, nil
}
