package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soullink/entitlement-service/internal/domain"
	"github.com/soullink/entitlement-service/internal/store"
)

const (
	DefaultPageSize     = 6
	MaxPageSize         = 50
	DefaultSimilarLimit = 3
)

// BiodataQuery is the public directory filter.
type BiodataQuery struct {
	BiodataType string
	Division    string
	MinAge      int
	MaxAge      int
	SortByAge   string
	Page        int
	PageSize    int
}

// BiodataPage is one page of the public directory.
type BiodataPage struct {
	Items    []domain.Biodata `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// SaveOwnBiodata creates the caller's profile on first save and updates it afterwards.
// The boolean reports whether a new profile was created.
func (s *Service) SaveOwnBiodata(ctx context.Context, ownerEmail string, in domain.BiodataInput) (*domain.Biodata, bool, error) {
	ownerEmail = normalizeEmail(ownerEmail)
	if ownerEmail == "" {
		return nil, false, fmt.Errorf("%w: owner email is required", ErrInvalidInput)
	}
	if err := validateBiodataInput(&in); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindBiodataByOwnerEmail(ctx, ownerEmail)
	if err != nil && !errors.Is(err, store.ErrBiodataNotFound) {
		return nil, false, fmt.Errorf("failed to load biodata: %w", err)
	}

	profile := biodataFromInput(in)
	profile.OwnerEmail = ownerEmail

	if existing != nil {
		profile.BiodataID = existing.BiodataID
		profile.CreatedAt = existing.CreatedAt
		if err := s.repo.UpdateBiodata(ctx, &profile); err != nil {
			return nil, false, fmt.Errorf("failed to update biodata: %w", err)
		}
		return &profile, false, nil
	}

	if err := s.repo.CreateBiodata(ctx, &profile); err != nil {
		if errors.Is(err, store.ErrBiodataExists) {
			return nil, false, fmt.Errorf("%w: owner already has a biodata", ErrInvalidInput)
		}
		return nil, false, fmt.Errorf("failed to create biodata: %w", err)
	}
	s.logger.Info("biodata created", "biodata_id", profile.BiodataID, "owner", ownerEmail)
	return &profile, true, nil
}

// MyBiodata returns the caller's own profile in full.
func (s *Service) MyBiodata(ctx context.Context, ownerEmail string) (*domain.Biodata, error) {
	profile, err := s.repo.FindBiodataByOwnerEmail(ctx, normalizeEmail(ownerEmail))
	if err != nil {
		return nil, profileError(err)
	}
	return profile, nil
}

// ArchiveOwnBiodata hides the caller's profile. Approved requests that point at it
// become integrity skew and drop out of every join.
func (s *Service) ArchiveOwnBiodata(ctx context.Context, ownerEmail string) error {
	if err := s.repo.ArchiveBiodata(ctx, normalizeEmail(ownerEmail), s.now()); err != nil {
		return profileError(err)
	}
	return nil
}

// ListBiodata returns a page of the public directory with contact fields removed.
func (s *Service) ListBiodata(ctx context.Context, q BiodataQuery) (*BiodataPage, error) {
	sortByAge := strings.ToLower(strings.TrimSpace(q.SortByAge))
	if sortByAge != "" && sortByAge != "asc" && sortByAge != "desc" {
		return nil, fmt.Errorf("%w: unsupported sort %q", ErrInvalidInput, q.SortByAge)
	}
	if q.BiodataType != "" && !isBiodataType(q.BiodataType) {
		return nil, fmt.Errorf("%w: unsupported biodata type %q", ErrInvalidInput, q.BiodataType)
	}
	if q.MinAge < 0 || q.MaxAge < 0 || (q.MaxAge > 0 && q.MinAge > q.MaxAge) {
		return nil, fmt.Errorf("%w: invalid age range", ErrInvalidInput)
	}

	page := q.Page
	if page <= 0 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	profiles, err := s.repo.ListBiodata(ctx, domain.BiodataFilter{
		BiodataType: q.BiodataType,
		Division:    strings.TrimSpace(q.Division),
		MinAge:      q.MinAge,
		MaxAge:      q.MaxAge,
		SortByAge:   sortByAge,
		Limit:       pageSize,
		Offset:      (page - 1) * pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list biodata: %w", err)
	}

	items := make([]domain.Biodata, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, p.Redacted())
	}
	return &BiodataPage{Items: items, Page: page, PageSize: pageSize}, nil
}

// SimilarBiodata lists other profiles of the same type. It is a plain filter, not a ranking.
func (s *Service) SimilarBiodata(ctx context.Context, biodataID int64, limit int) ([]domain.Biodata, error) {
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	target, err := s.repo.GetBiodata(ctx, biodataID)
	if err != nil {
		return nil, profileError(err)
	}

	candidates, err := s.repo.ListBiodata(ctx, domain.BiodataFilter{
		BiodataType: target.BiodataType,
		Limit:       limit + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list biodata: %w", err)
	}

	similar := make([]domain.Biodata, 0, limit)
	for _, c := range candidates {
		if c.BiodataID == target.BiodataID {
			continue
		}
		similar = append(similar, c.Redacted())
		if len(similar) == limit {
			break
		}
	}
	return similar, nil
}

func isBiodataType(t string) bool {
	return t == domain.BiodataTypeMale || t == domain.BiodataTypeFemale
}

func validateBiodataInput(in *domain.BiodataInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.BiodataType = strings.TrimSpace(in.BiodataType)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)

	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case !isBiodataType(in.BiodataType):
		return fmt.Errorf("%w: biodata type must be %q or %q", ErrInvalidInput, domain.BiodataTypeMale, domain.BiodataTypeFemale)
	case in.Age < 18 || in.Age > 120:
		return fmt.Errorf("%w: age must be between 18 and 120", ErrInvalidInput)
	case in.ContactEmail == "" && in.MobileNumber == "":
		return fmt.Errorf("%w: a contact email or mobile number is required", ErrInvalidInput)
	}
	return nil
}

func biodataFromInput(in domain.BiodataInput) domain.Biodata {
	return domain.Biodata{
		BiodataType:           in.BiodataType,
		Name:                  in.Name,
		ProfileImage:          in.ProfileImage,
		DateOfBirth:           in.DateOfBirth,
		Height:                in.Height,
		Weight:                in.Weight,
		Age:                   in.Age,
		Occupation:            in.Occupation,
		Race:                  in.Race,
		FatherName:            in.FatherName,
		MotherName:            in.MotherName,
		PermanentDivision:     in.PermanentDivision,
		PresentDivision:       in.PresentDivision,
		ExpectedPartnerAge:    in.ExpectedPartnerAge,
		ExpectedPartnerHeight: in.ExpectedPartnerHeight,
		ExpectedPartnerWeight: in.ExpectedPartnerWeight,
		ContactEmail:          in.ContactEmail,
		MobileNumber:          in.MobileNumber,
	}
}
