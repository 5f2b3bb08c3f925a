/**
 * @description
 * Domain models for biodata profiles.
 */
package domain

import "time"

const (
	BiodataTypeMale   = "Male"
	BiodataTypeFemale = "Female"
)

// Biodata represents a matrimonial profile row. ContactEmail and MobileNumber are
// the protected payload; everything else is public.
type Biodata struct {
	BiodataID             int64      `json:"biodata_id"`
	OwnerEmail            string     `json:"owner_email"`
	BiodataType           string     `json:"biodata_type"`
	Name                  string     `json:"name"`
	ProfileImage          string     `json:"profile_image,omitempty"`
	DateOfBirth           string     `json:"date_of_birth,omitempty"`
	Height                string     `json:"height,omitempty"`
	Weight                string     `json:"weight,omitempty"`
	Age                   int        `json:"age"`
	Occupation            string     `json:"occupation,omitempty"`
	Race                  string     `json:"race,omitempty"`
	FatherName            string     `json:"father_name,omitempty"`
	MotherName            string     `json:"mother_name,omitempty"`
	PermanentDivision     string     `json:"permanent_division,omitempty"`
	PresentDivision       string     `json:"present_division,omitempty"`
	ExpectedPartnerAge    string     `json:"expected_partner_age,omitempty"`
	ExpectedPartnerHeight string     `json:"expected_partner_height,omitempty"`
	ExpectedPartnerWeight string     `json:"expected_partner_weight,omitempty"`
	ContactEmail          string     `json:"contact_email,omitempty"`
	MobileNumber          string     `json:"mobile_number,omitempty"`
	ContactLocked         bool       `json:"contact_locked"`
	ArchivedAt            *time.Time `json:"archived_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Redacted returns a copy with the protected contact fields removed.
func (b Biodata) Redacted() Biodata {
	b.ContactEmail = ""
	b.MobileNumber = ""
	b.ContactLocked = true
	return b
}

// BiodataInput carries the owner-editable fields of a profile.
type BiodataInput struct {
	BiodataType           string `json:"biodata_type"`
	Name                  string `json:"name"`
	ProfileImage          string `json:"profile_image"`
	DateOfBirth           string `json:"date_of_birth"`
	Height                string `json:"height"`
	Weight                string `json:"weight"`
	Age                   int    `json:"age"`
	Occupation            string `json:"occupation"`
	Race                  string `json:"race"`
	FatherName            string `json:"father_name"`
	MotherName            string `json:"mother_name"`
	PermanentDivision     string `json:"permanent_division"`
	PresentDivision       string `json:"present_division"`
	ExpectedPartnerAge    string `json:"expected_partner_age"`
	ExpectedPartnerHeight string `json:"expected_partner_height"`
	ExpectedPartnerWeight string `json:"expected_partner_weight"`
	ContactEmail          string `json:"contact_email"`
	MobileNumber          string `json:"mobile_number"`
}

// BiodataFilter narrows a profile listing.
type BiodataFilter struct {
	BiodataType string
	Division    string
	MinAge      int
	MaxAge      int
	SortByAge   string
	Limit       int
	Offset      int
}
