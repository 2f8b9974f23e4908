package entity

import (
	"time"

	"github.com/google/uuid"
)

// FieldMappings tells the mapper which document column carries which control field.
type FieldMappings struct {
	IDField                  string `json:"id_field,omitempty"`
	NameField                string `json:"name_field,omitempty"`
	DescriptionField         string `json:"description_field,omitempty"`
	SectionField             string `json:"section_field,omitempty"`
	SubSectionField          string `json:"subsection_field,omitempty"`
	SubGroupField            string `json:"subgroup_field,omitempty"`
	ServiceField             string `json:"service_field,omitempty"`
	IDFormatExample          string `json:"id_format_example,omitempty"`
	NameFormatExample        string `json:"name_format_example,omitempty"`
	DescriptionFormatExample string `json:"description_format_example,omitempty"`
	SectionFormatExample     string `json:"section_format_example,omitempty"`
	SubSectionFormatExample  string `json:"subsection_format_example,omitempty"`
	SubGroupFormatExample    string `json:"subgroup_format_example,omitempty"`
}

// IsZero reports whether no field was mapped.
func (f FieldMappings) IsZero() bool {
	return f == FieldMappings{}
}

// Configuration is an immutable set of mapping parameters bound to one Upload.
type Configuration struct {
	ID                   uuid.UUID     `json:"id"`
	UploadID             uuid.UUID     `json:"upload_id"`
	FrameworkName        string        `json:"framework_name"`
	FrameworkVersion     *string       `json:"framework_version,omitempty"`
	FrameworkFullName    *string       `json:"framework_full_name,omitempty"`
	FrameworkDescription *string       `json:"framework_description,omitempty"`
	Providers            []string      `json:"providers"`
	EnableSubgroup       bool          `json:"enable_subgroup"`
	FieldMappings        FieldMappings `json:"field_mappings"`
	CustomInstructions   *string       `json:"custom_instructions,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
}
