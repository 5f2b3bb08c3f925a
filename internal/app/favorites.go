package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/soullink/entitlement-service/internal/domain"
)

// AddFavorite bookmarks a live profile for the owner.
func (s *Service) AddFavorite(ctx context.Context, ownerEmail string, biodataID int64) (*domain.Favorite, error) {
	ownerEmail = normalizeEmail(ownerEmail)
	if ownerEmail == "" || biodataID <= 0 {
		return nil, fmt.Errorf("%w: owner email and biodata id are required", ErrInvalidInput)
	}
	if _, err := s.repo.GetBiodata(ctx, biodataID); err != nil {
		return nil, profileError(err)
	}

	fav := &domain.Favorite{
		ID:         uuid.NewString(),
		OwnerEmail: ownerEmail,
		BiodataID:  biodataID,
	}
	created, err := s.repo.InsertFavorite(ctx, fav)
	if err != nil {
		return nil, fmt.Errorf("failed to add favorite: %w", err)
	}
	if !created {
		return nil, ErrFavoriteExists
	}
	return fav, nil
}

// RemoveFavorite deletes a bookmark.
func (s *Service) RemoveFavorite(ctx context.Context, ownerEmail string, biodataID int64) error {
	removed, err := s.repo.DeleteFavorite(ctx, normalizeEmail(ownerEmail), biodataID)
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	if !removed {
		return ErrFavoriteNotFound
	}
	return nil
}

// ListFavorites returns the owner's bookmarks joined to their redacted profiles.
// Bookmarks of profiles that no longer resolve are skipped.
func (s *Service) ListFavorites(ctx context.Context, ownerEmail string) ([]domain.FavoriteView, error) {
	favorites, err := s.repo.ListFavoritesByOwner(ctx, normalizeEmail(ownerEmail))
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}

	ids := make([]int64, 0, len(favorites))
	for _, f := range favorites {
		ids = append(ids, f.BiodataID)
	}
	profiles, err := s.repo.FindBiodataByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load biodata: %w", err)
	}

	views := make([]domain.FavoriteView, 0, len(favorites))
	for _, f := range favorites {
		profile, ok := profiles[f.BiodataID]
		if !ok {
			s.logger.Warn("favorite references a biodata that does not resolve", "favorite_id", f.ID, "biodata_id", f.BiodataID)
			continue
		}
		views = append(views, domain.FavoriteView{Favorite: f, Biodata: profile.Redacted()})
	}
	return views, nil
}
