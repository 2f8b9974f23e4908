package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/constants"
)

// JobSummary holds the counts computed from a validated mapping output.
type JobSummary struct {
	TotalControls      int `json:"total_controls"`
	ControlsWithChecks int `json:"controls_with_checks"`
	TotalCheckMappings int `json:"total_check_mappings"`
	UnmappedControls   int `json:"unmapped_controls"`
}

// Job is one provider-specific mapping run.
type Job struct {
	ID                 uuid.UUID           `json:"id"`
	BatchID            *uuid.UUID          `json:"batch_id,omitempty"`
	Status             constants.JobStatus `json:"status"`
	UploadID           uuid.UUID           `json:"upload_id"`
	ConfigurationID    uuid.UUID           `json:"configuration_id"`
	FrameworkName      *string             `json:"framework_name,omitempty"`
	FrameworkVersion   *string             `json:"framework_version,omitempty"`
	FrameworkFullName  *string             `json:"framework_full_name,omitempty"`
	Provider           string              `json:"provider"`
	FieldMappings      FieldMappings       `json:"field_mappings"`
	CustomInstructions *string             `json:"custom_instructions,omitempty"`
	ProgressPercentage int                 `json:"progress_percentage"`
	ProgressMessage    *string             `json:"progress_message,omitempty"`
	OutputJSONPath     *string             `json:"output_json_path,omitempty"`
	OutputExcelPath    *string             `json:"output_excel_path,omitempty"`
	ResultSummary      *JobSummary         `json:"result_summary,omitempty"`
	ErrorMessage       *string             `json:"error_message,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
}
