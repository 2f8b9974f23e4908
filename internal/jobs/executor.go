package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
	"github.com/joseph-ayodele/control-mapper/internal/mapping"
	"github.com/joseph-ayodele/control-mapper/internal/prompt"
	"github.com/joseph-ayodele/control-mapper/internal/repository"
)

// Progress messages written by the executor.
const (
	MsgStarting   = "Starting mapping process..."
	MsgProcessing = "Processing output..."
	MsgExporting  = "Generating output files..."
	MsgCompleted  = "Mapping completed successfully"
	MsgFailed     = "Job failed"
	MsgCancelled  = "Job cancelled"
	MsgAbandoned  = "Job abandoned on restart"
)

// Invoker runs the external mapping tool and returns its parsed JSON object.
type Invoker interface {
	Invoke(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (map[string]any, error)
}

// Checks is the slice of the check catalog the executor needs.
type Checks interface {
	GetChecksForPrompt(provider string) (string, error)
	ValidateCheckIDs(provider string, ids []string) (valid, invalid []string, err error)
}

// Exporter writes the mapping artifacts and returns their paths.
type Exporter interface {
	ExportJSON(jobID uuid.UUID, result map[string]any, framework, provider string) (string, error)
	ExportExcel(jobID uuid.UUID, result map[string]any, framework, provider string) (string, error)
}

type ExecutorConfig struct {
	// Timeout bounds one tool invocation. Zero leaves the invoker default.
	Timeout time.Duration
}

// Executor drives one job from pending to a terminal status.
type Executor struct {
	logger   *slog.Logger
	cfg      ExecutorConfig
	jobs     repository.JobRepository
	uploads  repository.UploadRepository
	configs  repository.ConfigurationRepository
	checks   Checks
	prompts  *prompt.Builder
	invoker  Invoker
	exporter Exporter
}

func NewExecutor(
	logger *slog.Logger,
	cfg ExecutorConfig,
	jobs repository.JobRepository,
	uploads repository.UploadRepository,
	configs repository.ConfigurationRepository,
	checks Checks,
	prompts *prompt.Builder,
	invoker Invoker,
	exporter Exporter,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		logger:   logger,
		cfg:      cfg,
		jobs:     jobs,
		uploads:  uploads,
		configs:  configs,
		checks:   checks,
		prompts:  prompts,
		invoker:  invoker,
		exporter: exporter,
	}
}

// Run executes the job and records the outcome on its row. It never returns
// an error: every failure, panic and cancellation ends as FAILED.
func (e *Executor) Run(ctx context.Context, jobID uuid.UUID) {
	start := time.Now()
	e.logger.Info("job.run.start", "job_id", jobID)

	err := e.runSafely(ctx, jobID)
	if err == nil {
		e.logger.Info("job.run.ok", "job_id", jobID, "elapsed_ms", time.Since(start).Milliseconds())
		return
	}
	if errors.Is(err, errJobMissing) {
		e.logger.Error("job.run.failed", "job_id", jobID, "err", err)
		return
	}
	// another run owns the row; failing it here would clobber that run
	if errors.Is(err, errJobNotPending) {
		e.logger.Warn("job.run.skipped", "job_id", jobID, "err", err)
		return
	}

	errMsg := common.Message(err)
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		errMsg = MsgCancelled
	}
	e.logger.Error("job.run.failed", "job_id", jobID, "err", err, "elapsed_ms", time.Since(start).Milliseconds())

	// the run context may be cancelled; the failure still has to land
	if ferr := e.jobs.Fail(context.WithoutCancel(ctx), jobID, errMsg, MsgFailed); ferr != nil &&
		!errors.Is(ferr, repository.ErrJobNotWritable) {
		e.logger.Error("job.fail.persist_failed", "job_id", jobID, "err", ferr)
	}
}

var (
	errJobMissing    = errors.New("job not found")
	errJobNotPending = errors.New("job is not pending")
)

func (e *Executor) runSafely(ctx context.Context, jobID uuid.UUID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("job.run.panic", "job_id", jobID, "panic", r)
			err = common.NewAppError("INTERNAL", fmt.Sprintf("Unexpected error: %v", r), common.ErrInternal)
		}
	}()
	return e.run(ctx, jobID)
}

func (e *Executor) run(ctx context.Context, jobID uuid.UUID) error {
	job, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: %s", errJobMissing, jobID)
		}
		return err
	}

	upload, cfg, err := e.load(ctx, job)
	if err != nil {
		return err
	}

	if err := e.jobs.MarkRunning(ctx, job.ID, MsgStarting); err != nil {
		if errors.Is(err, repository.ErrJobNotWritable) {
			return fmt.Errorf("%w: %s is %s", errJobNotPending, job.ID, job.Status)
		}
		return err
	}

	checksList, err := e.checks.GetChecksForPrompt(job.Provider)
	if err != nil {
		return err
	}
	if upload.ExtractedText == nil || strings.TrimSpace(*upload.ExtractedText) == "" {
		return common.NewAppError("EMPTY_INPUT", "No extracted text found in upload", common.ErrEmptyInput)
	}

	system, user := e.prompts.Build(prompt.Request{
		FrameworkName:        cfg.FrameworkName,
		FrameworkVersion:     deref(cfg.FrameworkVersion),
		FrameworkFullName:    deref(cfg.FrameworkFullName),
		FrameworkDescription: deref(cfg.FrameworkDescription),
		Provider:             job.Provider,
		DocumentText:         *upload.ExtractedText,
		ChecksList:           checksList,
		FieldMappings:        cfg.FieldMappings,
		CustomInstructions:   deref(cfg.CustomInstructions),
		EnableSubgroup:       cfg.EnableSubgroup,
	})

	display := constants.ProviderDisplayName(job.Provider)
	if err := e.progress(ctx, job.ID, 10, fmt.Sprintf("Executing Claude Code mapping for %s...", display)); err != nil {
		return err
	}

	raw, err := e.invoker.Invoke(ctx, user, system, e.cfg.Timeout)
	if err != nil {
		return err
	}

	if err := e.progress(ctx, job.ID, 70, MsgProcessing); err != nil {
		return err
	}

	changed := mapping.Normalize(raw, mapping.Options{
		Provider:       job.Provider,
		FullName:       deref(cfg.FrameworkFullName),
		Description:    deref(cfg.FrameworkDescription),
		EnableSubgroup: cfg.EnableSubgroup,
	})
	if len(changed) > 0 {
		e.logger.Debug("job.output.normalized", "job_id", job.ID, "fields", changed)
	}

	out, err := mapping.Validate(raw)
	if err != nil {
		return err
	}
	e.warnUnknownChecks(job, out)
	summary := mapping.Summarize(out)

	if err := e.progress(ctx, job.ID, 80, MsgExporting); err != nil {
		return err
	}

	jsonPath, err := e.exporter.ExportJSON(job.ID, raw, cfg.FrameworkName, job.Provider)
	if err != nil {
		return err
	}
	excelPath, err := e.exporter.ExportExcel(job.ID, raw, cfg.FrameworkName, job.Provider)
	if err != nil {
		return err
	}

	return e.jobs.Complete(ctx, job.ID, repository.CompletedJob{
		OutputJSONPath:  jsonPath,
		OutputExcelPath: excelPath,
		Summary:         summary,
		Message:         MsgCompleted,
	})
}

func (e *Executor) load(ctx context.Context, job *entity.Job) (*entity.Upload, *entity.Configuration, error) {
	upload, err := e.uploads.Get(ctx, job.UploadID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, nil, err
	}
	cfg, cerr := e.configs.Get(ctx, job.ConfigurationID)
	if cerr != nil && !errors.Is(cerr, common.ErrNotFound) {
		return nil, nil, cerr
	}
	if upload == nil || cfg == nil {
		return nil, nil, common.NotFound("Upload or configuration not found")
	}
	return upload, cfg, nil
}

func (e *Executor) progress(ctx context.Context, id uuid.UUID, pct int, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.jobs.UpdateProgress(ctx, id, pct, msg)
}

func (e *Executor) warnUnknownChecks(job *entity.Job, out *mapping.Output) {
	ids := out.CheckIDs()
	if len(ids) == 0 {
		return
	}
	_, invalid, err := e.checks.ValidateCheckIDs(job.Provider, ids)
	if err != nil {
		e.logger.Warn("job.checks.validate_failed", "job_id", job.ID, "err", err)
		return
	}
	if len(invalid) > 0 {
		e.logger.Warn("job.checks.unknown", "job_id", job.ID, "provider", job.Provider,
			"count", len(invalid), "check_ids", invalid)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
