/**
 * @description
 * This file defines the `Repository` interface, the contract for all data access
 * required by the entitlement-service. Two backends implement it: PostgreSQL
 * (production) and an in-memory store (local runs and tests). Both enforce the
 * same uniqueness rules and the same conditional approval transition.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/soullink/entitlement-service/internal/domain"
)

var (
	ErrBiodataNotFound        = errors.New("biodata not found")
	ErrBiodataExists          = errors.New("owner already has a biodata")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrPremiumRequestNotFound = errors.New("premium request not found")
	// ErrPairAlreadyApproved is returned when a write would create a second approved
	// request for the same (payer, biodata) pair.
	ErrPairAlreadyApproved = errors.New("payer already has an approved request for this biodata")
)

// Repository defines the set of methods for interacting with persistent storage.
type Repository interface {
	// Profile methods. Archived profiles are treated as absent by every read.
	CreateBiodata(ctx context.Context, b *domain.Biodata) error
	UpdateBiodata(ctx context.Context, b *domain.Biodata) error
	GetBiodata(ctx context.Context, biodataID int64) (*domain.Biodata, error)
	FindBiodataByOwnerEmail(ctx context.Context, ownerEmail string) (*domain.Biodata, error)
	FindBiodataByIDs(ctx context.Context, biodataIDs []int64) (map[int64]domain.Biodata, error)
	ListBiodata(ctx context.Context, filter domain.BiodataFilter) ([]domain.Biodata, error)
	ArchiveBiodata(ctx context.Context, ownerEmail string, archivedAt time.Time) error

	// Payment ledger methods. InsertPayment reports created=false and fills p with
	// the stored row when the payment id was already recorded.
	InsertPayment(ctx context.Context, p *domain.Payment) (bool, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	ListPayments(ctx context.Context) ([]domain.Payment, error)

	// Premium request methods.
	InsertPremiumRequest(ctx context.Context, req *domain.PremiumRequest) (bool, error)
	// ApprovePremiumRequest performs the pending -> approved transition as a single
	// conditional write. It returns (nil, nil) when no pending row matched.
	ApprovePremiumRequest(ctx context.Context, paymentID string, approvedAt time.Time) (*domain.PremiumRequest, error)
	GetPremiumRequestByPaymentID(ctx context.Context, paymentID string) (*domain.PremiumRequest, error)
	FindApprovedPremiumRequest(ctx context.Context, payerEmail string, biodataID int64) (*domain.PremiumRequest, error)
	// FindPendingPremiumRequest returns the oldest pending request for a pair.
	FindPendingPremiumRequest(ctx context.Context, payerEmail string, biodataID int64) (*domain.PremiumRequest, error)
	ListPremiumRequests(ctx context.Context) ([]domain.PremiumRequest, error)
	// ListApprovedPremiumRequests returns approved rows in approval order.
	ListApprovedPremiumRequests(ctx context.Context, filter domain.PremiumRequestFilter) ([]domain.PremiumRequest, error)

	// Favorite methods. InsertFavorite returns false when the pair already exists.
	InsertFavorite(ctx context.Context, f *domain.Favorite) (bool, error)
	DeleteFavorite(ctx context.Context, ownerEmail string, biodataID int64) (bool, error)
	ListFavoritesByOwner(ctx context.Context, ownerEmail string) ([]domain.Favorite, error)

	// Success story methods.
	InsertSuccessStory(ctx context.Context, story *domain.SuccessStory) error
	ListSuccessStories(ctx context.Context, limit int) ([]domain.SuccessStory, error)

	// CountSiteStats counts live profiles per type and all success stories.
	CountSiteStats(ctx context.Context) (domain.SiteStats, error)
}
