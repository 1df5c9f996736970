package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile represents a campus user synced from the external identity provider.
// The Subject field is the stable ID issued by the provider; everything else
// is profile data owned by this service.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Subject     string    `json:"subject"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
