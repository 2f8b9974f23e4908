package entity

import (
	"time"

	"github.com/google/uuid"
)

// Batch groups the jobs created from one Configuration, one per provider.
type Batch struct {
	ID              uuid.UUID  `json:"id"`
	ConfigurationID uuid.UUID  `json:"configuration_id"`
	UploadID        uuid.UUID  `json:"upload_id"`
	FrameworkName   string     `json:"framework_name"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
