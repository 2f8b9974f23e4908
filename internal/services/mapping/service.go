package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
	"github.com/joseph-ayodele/control-mapper/internal/export"
	"github.com/joseph-ayodele/control-mapper/internal/jobs"
	"github.com/joseph-ayodele/control-mapper/internal/repository"
)

const msgQueued = "Job queued..."

// Coordinator is the slice of jobs.Coordinator the request layer drives.
type Coordinator interface {
	StartBatch(batchID uuid.UUID, jobIDs []uuid.UUID) bool
	CancelJob(ctx context.Context, jobID uuid.UUID) bool
	IsRunning(jobID uuid.UUID) bool
}

// Service creates batches and answers status and download queries.
type Service struct {
	uploads repository.UploadRepository
	configs repository.ConfigurationRepository
	batches repository.BatchRepository
	jobs    repository.JobRepository
	coord   Coordinator
	logger  *slog.Logger
}

func NewService(
	uploads repository.UploadRepository,
	configs repository.ConfigurationRepository,
	batches repository.BatchRepository,
	jobRepo repository.JobRepository,
	coord Coordinator,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uploads: uploads, configs: configs, batches: batches, jobs: jobRepo, coord: coord, logger: logger}
}

type StartRequest struct {
	UploadID        string `json:"upload_id"`
	ConfigurationID string `json:"configuration_id"`
}

type JobInfo struct {
	JobID    uuid.UUID           `json:"job_id"`
	Provider string              `json:"provider"`
	Status   constants.JobStatus `json:"status"`
}

type StartResult struct {
	BatchID   uuid.UUID   `json:"batch_id"`
	JobIDs    []uuid.UUID `json:"job_ids"`
	Jobs      []JobInfo   `json:"jobs"`
	CreatedAt time.Time   `json:"created_at"`
}

// Start creates a batch with one job per configured provider and hands it
// to the coordinator.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	uploadID, err := common.ParseID("Upload", req.UploadID)
	if err != nil {
		return nil, err
	}
	configID, err := common.ParseID("Configuration", req.ConfigurationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.uploads.Get(ctx, uploadID); err != nil {
		return nil, err
	}
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return nil, err
	}
	if cfg.UploadID != uploadID {
		return nil, common.InvalidInput("Configuration does not match upload")
	}

	b := &entity.Batch{ConfigurationID: cfg.ID, UploadID: uploadID, FrameworkName: cfg.FrameworkName}
	created := make([]*entity.Job, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		queued := msgQueued
		created = append(created, &entity.Job{
			UploadID:           uploadID,
			ConfigurationID:    cfg.ID,
			FrameworkName:      &cfg.FrameworkName,
			FrameworkVersion:   cfg.FrameworkVersion,
			FrameworkFullName:  cfg.FrameworkFullName,
			Provider:           p,
			FieldMappings:      cfg.FieldMappings,
			CustomInstructions: cfg.CustomInstructions,
			ProgressMessage:    &queued,
		})
	}
	if err := s.batches.CreateWithJobs(ctx, b, created); err != nil {
		return nil, err
	}

	res := &StartResult{BatchID: b.ID, CreatedAt: b.CreatedAt}
	for _, j := range created {
		res.JobIDs = append(res.JobIDs, j.ID)
		res.Jobs = append(res.Jobs, JobInfo{JobID: j.ID, Provider: j.Provider, Status: j.Status})
	}
	s.coord.StartBatch(b.ID, res.JobIDs)

	s.logger.Info("mapping started", "request_id", common.RequestIDFromContext(ctx), "batch_id", b.ID, "configuration_id", cfg.ID, "jobs", len(created))
	return res, nil
}

type JobView struct {
	JobID              uuid.UUID           `json:"job_id"`
	Provider           string              `json:"provider"`
	Status             constants.JobStatus `json:"status"`
	ProgressPercentage int                 `json:"progress_percentage"`
	ProgressMessage    *string             `json:"progress_message"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	Summary            *entity.JobSummary  `json:"summary,omitempty"`
	DownloadLinks      map[string]string   `json:"download_links,omitempty"`
	ErrorMessage       *string             `json:"error_message,omitempty"`
	InFlight           bool                `json:"in_flight"`
}

func (s *Service) JobStatus(ctx context.Context, rawID string) (*JobView, error) {
	id, err := common.ParseID("Job", rawID)
	if err != nil {
		return nil, err
	}
	j, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := jobView(j)
	v.InFlight = s.coord.IsRunning(j.ID)
	return v, nil
}

func jobView(j *entity.Job) *JobView {
	v := &JobView{
		JobID:              j.ID,
		Provider:           j.Provider,
		Status:             j.Status,
		ProgressPercentage: j.ProgressPercentage,
		ProgressMessage:    j.ProgressMessage,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
	}
	switch j.Status {
	case constants.JobStatusCompleted:
		v.CompletedAt = j.CompletedAt
		v.Summary = j.ResultSummary
		v.DownloadLinks = map[string]string{
			"json":  fmt.Sprintf("/download/%s/json", j.ID),
			"excel": fmt.Sprintf("/download/%s/excel", j.ID),
		}
	case constants.JobStatusFailed:
		v.ErrorMessage = j.ErrorMessage
	}
	return v
}

type BatchJobStatus struct {
	JobID              uuid.UUID           `json:"job_id"`
	Provider           string              `json:"provider"`
	Status             constants.JobStatus `json:"status"`
	ProgressPercentage int                 `json:"progress_percentage"`
	ProgressMessage    *string             `json:"progress_message"`
	Summary            *entity.JobSummary  `json:"summary"`
	ErrorMessage       *string             `json:"error_message"`
}

type BatchView struct {
	BatchID         uuid.UUID             `json:"batch_id"`
	Status          constants.BatchStatus `json:"status"`
	OverallProgress int                   `json:"overall_progress"`
	CurrentMessage  *string               `json:"current_message"`
	Jobs            []BatchJobStatus      `json:"jobs"`
	CreatedAt       time.Time             `json:"created_at"`
	CompletedAt     *time.Time            `json:"completed_at"`
}

func (s *Service) BatchStatus(ctx context.Context, rawID string) (*BatchView, error) {
	id, err := common.ParseID("Batch", rawID)
	if err != nil {
		return nil, err
	}
	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.jobs.ListByBatch(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &BatchView{
		BatchID:         b.ID,
		Status:          jobs.DeriveBatchStatus(jobs.Statuses(members)),
		OverallProgress: jobs.OverallProgress(members),
		Jobs:            make([]BatchJobStatus, 0, len(members)),
		CreatedAt:       b.CreatedAt,
		CompletedAt:     b.CompletedAt,
	}
	if msg := jobs.CurrentMessage(members); msg != "" {
		v.CurrentMessage = &msg
	}
	for _, j := range members {
		v.Jobs = append(v.Jobs, BatchJobStatus{
			JobID:              j.ID,
			Provider:           j.Provider,
			Status:             j.Status,
			ProgressPercentage: j.ProgressPercentage,
			ProgressMessage:    j.ProgressMessage,
			Summary:            j.ResultSummary,
			ErrorMessage:       j.ErrorMessage,
		})
	}
	return v, nil
}

type CancelResult struct {
	JobID     uuid.UUID           `json:"job_id"`
	Cancelled bool                `json:"cancelled"`
	Status    constants.JobStatus `json:"status"`
}

// CancelJob cancels a running or queued job. Cancelling a job that is not in
// flight is not an error; Cancelled is false.
func (s *Service) CancelJob(ctx context.Context, rawID string) (*CancelResult, error) {
	id, err := common.ParseID("Job", rawID)
	if err != nil {
		return nil, err
	}
	if _, err := s.jobs.Get(ctx, id); err != nil {
		return nil, err
	}
	cancelled := s.coord.CancelJob(ctx, id)
	j, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CancelResult{JobID: id, Cancelled: cancelled, Status: j.Status}, nil
}

// Download names a file ready to be served.
type Download struct {
	Path        string
	Filename    string
	ContentType string
}

const (
	contentTypeJSON = "application/json"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ResolveDownload finds the artifact of kind ("json" or "excel") for a completed job.
func (s *Service) ResolveDownload(ctx context.Context, rawID, kind string) (*Download, error) {
	if kind != "json" && kind != "excel" {
		return nil, common.InvalidInput("Invalid file type. Use 'json' or 'excel'")
	}
	id, err := common.ParseID("Job", rawID)
	if err != nil {
		return nil, err
	}
	j, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status != constants.JobStatusCompleted {
		return nil, common.InvalidInputf("Job is not completed. Current status: %s", j.Status)
	}

	framework := ""
	if j.FrameworkName != nil {
		framework = *j.FrameworkName
	}
	d := &Download{ContentType: contentTypeJSON, Filename: export.DownloadName(framework, j.Provider, "json")}
	path := j.OutputJSONPath
	if kind == "excel" {
		d.ContentType = contentTypeXLSX
		d.Filename = export.DownloadName(framework, j.Provider, "xlsx")
		path = j.OutputExcelPath
	}
	if path == nil || *path == "" {
		return nil, common.NotFound("Output file not found")
	}
	if _, err := os.Stat(*path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, common.NotFound("Output file not found on disk")
		}
		return nil, err
	}
	d.Path = *path
	return d, nil
}

// BatchArchive lists what goes into a batch zip.
type BatchArchive struct {
	Filename string
	Entries  []export.ZipEntry
}

// BatchZip collects the artifacts of every completed job in the batch.
func (s *Service) BatchZip(ctx context.Context, rawID string) (*BatchArchive, error) {
	id, err := common.ParseID("Batch", rawID)
	if err != nil {
		return nil, err
	}
	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	done, err := s.jobs.ListCompletedByBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(done) == 0 {
		return nil, common.InvalidInput("No completed jobs found in this batch")
	}

	a := &BatchArchive{Filename: zipName(b.FrameworkName)}
	for _, j := range done {
		framework := "mapping"
		if j.FrameworkName != nil && *j.FrameworkName != "" {
			framework = *j.FrameworkName
		}
		if j.OutputJSONPath != nil && *j.OutputJSONPath != "" {
			a.Entries = append(a.Entries, export.ZipEntry{
				Path: *j.OutputJSONPath,
				Name: export.DownloadName(framework, j.Provider, "json"),
			})
		}
		if j.OutputExcelPath != nil && *j.OutputExcelPath != "" {
			a.Entries = append(a.Entries, export.ZipEntry{
				Path: *j.OutputExcelPath,
				Name: export.DownloadName(framework, j.Provider, "xlsx"),
			})
		}
	}
	return a, nil
}

func zipName(framework string) string {
	if framework == "" {
		framework = "mapping"
	}
	return strings.ReplaceAll(framework+"_all_providers.zip", " ", "_")
}
