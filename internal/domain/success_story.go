/**
 * @description
 * Domain model for user-submitted success stories.
 */
package domain

import "time"

// SuccessStory is a user-submitted marriage story.
type SuccessStory struct {
	ID               string     `json:"id"`
	SubmittedBy      string     `json:"submitted_by"`
	SelfBiodataID    int64      `json:"self_biodata_id"`
	PartnerBiodataID int64      `json:"partner_biodata_id"`
	Story            string     `json:"success_story"`
	CoupleImageLink  string     `json:"couple_image_link,omitempty"`
	MarriageDate     *time.Time `json:"marriage_date,omitempty"`
	ReviewStars      *int       `json:"review_stars,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
