package entity

import (
	"time"

	"github.com/google/uuid"
)

// Upload is a stored, text-extracted framework document.
type Upload struct {
	ID            uuid.UUID      `json:"id"`
	Filename      string         `json:"filename"`
	FileType      string         `json:"file_type"`
	FilePath      string         `json:"file_path"`
	FileSize      int64          `json:"file_size"`
	ExtractedText *string        `json:"extracted_text,omitempty"`
	Preview       *string        `json:"preview,omitempty"`
	Structure     map[string]any `json:"structure,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
