package owners

import "time"

// Owner is the identity documents are stored under. IDs are assigned by the upstream
// auth gateway; the profile fields are informational.
type Owner struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
