package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soullink/entitlement-service/internal/domain"
	"github.com/soullink/entitlement-service/pkg/rabbitmq"
)

const (
	DefaultStoryLimit = 20
	MaxStoryLimit     = 100
)

// StoryInput is a couple's submission.
type StoryInput struct {
	SelfBiodataID    int64      `json:"self_biodata_id"`
	PartnerBiodataID int64      `json:"partner_biodata_id"`
	Story            string     `json:"success_story"`
	CoupleImageLink  string     `json:"couple_image_link"`
	MarriageDate     *time.Time `json:"marriage_date"`
	ReviewStars      *int       `json:"review_stars"`
}

// SubmitStory records a success story. Both biodata ids must resolve and differ.
func (s *Service) SubmitStory(ctx context.Context, submitterEmail string, in StoryInput) (*domain.SuccessStory, error) {
	submitterEmail = normalizeEmail(submitterEmail)
	in.Story = strings.TrimSpace(in.Story)

	switch {
	case submitterEmail == "":
		return nil, fmt.Errorf("%w: submitter email is required", ErrInvalidInput)
	case in.SelfBiodataID <= 0 || in.PartnerBiodataID <= 0:
		return nil, fmt.Errorf("%w: both biodata ids are required", ErrInvalidInput)
	case in.SelfBiodataID == in.PartnerBiodataID:
		return nil, fmt.Errorf("%w: partner biodata must differ from your own", ErrInvalidInput)
	case in.Story == "":
		return nil, fmt.Errorf("%w: story text is required", ErrInvalidInput)
	case in.ReviewStars != nil && (*in.ReviewStars < 1 || *in.ReviewStars > 5):
		return nil, fmt.Errorf("%w: review stars must be between 1 and 5", ErrInvalidInput)
	}

	found, err := s.repo.FindBiodataByIDs(ctx, []int64{in.SelfBiodataID, in.PartnerBiodataID})
	if err != nil {
		return nil, fmt.Errorf("failed to load biodata: %w", err)
	}
	if _, ok := found[in.SelfBiodataID]; !ok {
		return nil, ErrProfileNotFound
	}
	if _, ok := found[in.PartnerBiodataID]; !ok {
		return nil, ErrProfileNotFound
	}

	story := &domain.SuccessStory{
		ID:               uuid.NewString(),
		SubmittedBy:      submitterEmail,
		SelfBiodataID:    in.SelfBiodataID,
		PartnerBiodataID: in.PartnerBiodataID,
		Story:            in.Story,
		CoupleImageLink:  strings.TrimSpace(in.CoupleImageLink),
		MarriageDate:     in.MarriageDate,
		ReviewStars:      in.ReviewStars,
	}
	if err := s.repo.InsertSuccessStory(ctx, story); err != nil {
		return nil, fmt.Errorf("failed to save success story: %w", err)
	}

	s.publishEvent(ctx, rabbitmq.RoutingKeySuccessStorySubmitted, rabbitmq.SuccessStorySubmittedEvent{
		StoryID:          story.ID,
		SubmittedBy:      story.SubmittedBy,
		SelfBiodataID:    story.SelfBiodataID,
		PartnerBiodataID: story.PartnerBiodataID,
		Timestamp:        story.CreatedAt,
	})
	return story, nil
}

// ListStories returns the newest stories first.
func (s *Service) ListStories(ctx context.Context, limit int) ([]domain.SuccessStory, error) {
	if limit <= 0 {
		limit = DefaultStoryLimit
	}
	if limit > MaxStoryLimit {
		limit = MaxStoryLimit
	}
	stories, err := s.repo.ListSuccessStories(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list success stories: %w", err)
	}
	return stories, nil
}

// SiteStats returns the public home-page counters: live profiles per type and
// submitted success stories.
func (s *Service) SiteStats(ctx context.Context) (*domain.SiteStats, error) {
	stats, err := s.repo.CountSiteStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count site stats: %w", err)
	}
	return &stats, nil
}
