package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/soullink/entitlement-service/internal/domain"
	"github.com/soullink/entitlement-service/internal/store"
)

const (
	CardSortAgeAsc  = "age_asc"
	CardSortAgeDesc = "age_desc"

	DefaultCardLimit = 6
	MaxCardLimit     = 50
)

// CardFilter shapes the public premium-card listing.
type CardFilter struct {
	SortBy string
	Limit  int
}

// CanReveal reports whether requester may see the contact fields of a biodata:
// its owner, any admin, or a payer holding an approved request for it.
func (s *Service) CanReveal(ctx context.Context, requester Identity, biodataID int64) (bool, error) {
	target, err := s.repo.GetBiodata(ctx, biodataID)
	if err != nil {
		return false, profileError(err)
	}
	return s.canRevealProfile(ctx, requester, target)
}

func (s *Service) canRevealProfile(ctx context.Context, requester Identity, target *domain.Biodata) (bool, error) {
	if requester.IsAdmin {
		return true, nil
	}
	email := normalizeEmail(requester.Email)
	if email == "" {
		return false, nil
	}
	if normalizeEmail(target.OwnerEmail) == email {
		return true, nil
	}

	_, err := s.repo.FindApprovedPremiumRequest(ctx, email, target.BiodataID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrPremiumRequestNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check premium access: %w", err)
}

// ViewBiodata returns the profile for a detail page, with contact fields removed unless
// the requester may see them.
func (s *Service) ViewBiodata(ctx context.Context, requester Identity, biodataID int64) (*domain.Biodata, error) {
	target, err := s.repo.GetBiodata(ctx, biodataID)
	if err != nil {
		return nil, profileError(err)
	}
	allowed, err := s.canRevealProfile(ctx, requester, target)
	if err != nil {
		return nil, err
	}
	if allowed {
		return target, nil
	}
	redacted := target.Redacted()
	return &redacted, nil
}

// RevealedContactsFor lists the full profiles the requester has unlocked, in approval order.
// Requests whose profile no longer resolves are skipped and logged.
func (s *Service) RevealedContactsFor(ctx context.Context, requesterEmail string) ([]domain.Biodata, error) {
	email := normalizeEmail(requesterEmail)
	if email == "" {
		return nil, fmt.Errorf("%w: requester email is required", ErrInvalidInput)
	}

	approved, err := s.ListApproved(ctx, domain.PremiumRequestFilter{PayerEmail: email})
	if err != nil {
		return nil, err
	}
	profiles, err := s.resolveTargets(ctx, approved)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(approved))
	out := make([]domain.Biodata, 0, len(approved))
	for _, req := range approved {
		if seen[req.TargetBiodataID] {
			continue
		}
		profile, ok := profiles[req.TargetBiodataID]
		if !ok {
			s.logSkew(req)
			continue
		}
		seen[req.TargetBiodataID] = true
		out = append(out, profile)
	}
	return out, nil
}

// ApprovedCards builds the public showcase of unlocked profiles: approved requests joined to
// their target biodata, one card per profile owner (first approval wins), sorted by age.
func (s *Service) ApprovedCards(ctx context.Context, filter CardFilter) ([]domain.Biodata, error) {
	sortBy := strings.ToLower(strings.TrimSpace(filter.SortBy))
	switch sortBy {
	case "":
		sortBy = CardSortAgeAsc
	case CardSortAgeAsc, CardSortAgeDesc:
	default:
		return nil, fmt.Errorf("%w: unsupported sort %q", ErrInvalidInput, filter.SortBy)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultCardLimit
	}
	if limit > MaxCardLimit {
		limit = MaxCardLimit
	}

	approved, err := s.ListApproved(ctx, domain.PremiumRequestFilter{})
	if err != nil {
		return nil, err
	}
	profiles, err := s.resolveTargets(ctx, approved)
	if err != nil {
		return nil, err
	}

	seenOwners := make(map[string]bool)
	cards := make([]domain.Biodata, 0, len(profiles))
	for _, req := range approved {
		profile, ok := profiles[req.TargetBiodataID]
		if !ok {
			s.logSkew(req)
			continue
		}
		owner := normalizeEmail(profile.OwnerEmail)
		if seenOwners[owner] {
			continue
		}
		seenOwners[owner] = true
		cards = append(cards, profile.Redacted())
	}

	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Age != cards[j].Age {
			if sortBy == CardSortAgeDesc {
				return cards[i].Age > cards[j].Age
			}
			return cards[i].Age < cards[j].Age
		}
		return cards[i].BiodataID < cards[j].BiodataID
	})

	if len(cards) > limit {
		cards = cards[:limit]
	}
	return cards, nil
}

// AuditIntegrity counts approved requests whose target profile no longer resolves.
func (s *Service) AuditIntegrity(ctx context.Context) (int, error) {
	approved, err := s.ListApproved(ctx, domain.PremiumRequestFilter{})
	if err != nil {
		return 0, err
	}
	profiles, err := s.resolveTargets(ctx, approved)
	if err != nil {
		return 0, err
	}

	skewed := 0
	for _, req := range approved {
		if _, ok := profiles[req.TargetBiodataID]; !ok {
			s.logSkew(req)
			skewed++
		}
	}
	return skewed, nil
}

func (s *Service) resolveTargets(ctx context.Context, requests []domain.PremiumRequest) (map[int64]domain.Biodata, error) {
	ids := make([]int64, 0, len(requests))
	seen := make(map[int64]bool, len(requests))
	for _, req := range requests {
		if !seen[req.TargetBiodataID] {
			seen[req.TargetBiodataID] = true
			ids = append(ids, req.TargetBiodataID)
		}
	}
	profiles, err := s.repo.FindBiodataByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load biodata: %w", err)
	}
	return profiles, nil
}

func (s *Service) logSkew(req domain.PremiumRequest) {
	s.logger.Warn("approved request references a biodata that does not resolve",
		"request_id", req.RequestID,
		"payment_id", req.PaymentID,
		"biodata_id", req.TargetBiodataID,
	)
}
