package domain

import "time"

// Favorite is a bookmark of one profile by one user.
type Favorite struct {
	ID         string    `json:"id"`
	OwnerEmail string    `json:"owner_email"`
	BiodataID  int64     `json:"biodata_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// FavoriteView pairs a favorite with the (redacted) profile it points at.
type FavoriteView struct {
	Favorite
	Biodata Biodata `json:"biodata"`
}
