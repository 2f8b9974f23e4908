package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
)

const jobsTable = "jobs"

// ErrJobNotWritable is returned when a guarded transition matched no row:
// the job is terminal, or the write would move progress backwards.
var ErrJobNotWritable = errors.New("job not writable")

var jobColumns = []string{
	"id", "batch_id", "status", "upload_id", "configuration_id",
	"framework_name", "framework_version", "framework_full_name", "provider",
	"field_mappings", "custom_instructions", "progress_percentage", "progress_message",
	"output_json_path", "output_excel_path", "result_summary", "error_message",
	"created_at", "updated_at", "completed_at",
}

// CompletedJob carries what the executor records on success.
type CompletedJob struct {
	OutputJSONPath  string
	OutputExcelPath string
	Summary         entity.JobSummary
	Message         string
}

type JobRepository interface {
	Create(ctx context.Context, j *entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.Job, error)
	ListCompletedByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID, message string) error
	UpdateProgress(ctx context.Context, id uuid.UUID, percentage int, message string) error
	Complete(ctx context.Context, id uuid.UUID, result CompletedJob) error
	Fail(ctx context.Context, id uuid.UUID, errMessage, progressMessage string) error
	FailAbandoned(ctx context.Context, errMessage, progressMessage string) (int64, error)
	CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error)
}

type jobRepo struct {
	drv *entsql.Driver
	log *slog.Logger
}

func NewJobRepository(drv *entsql.Driver, log *slog.Logger) JobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &jobRepo{drv: drv, log: log}
}

func (r *jobRepo) Create(ctx context.Context, j *entity.Job) error {
	if err := insertJob(ctx, r.drv, r.drv.Dialect(), j, 0); err != nil {
		r.log.Error("job create failed", "job_id", j.ID, "provider", j.Provider, "err", err)
		return common.NewAppError("DB_ERROR", "create job", err)
	}
	r.log.Info("job created", "job_id", j.ID, "provider", j.Provider)
	return nil
}

// insertJob writes one job row on conn, which may be a transaction.
func insertJob(ctx context.Context, conn dialect.ExecQuerier, d string, j *entity.Job, seq int) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	ts := now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = ts
	}
	j.UpdatedAt = j.CreatedAt
	if j.Status == "" {
		j.Status = constants.JobStatusPending
	}
	mappings, err := jsonArg(j.FieldMappings)
	if err != nil {
		return err
	}
	var batchID any
	if j.BatchID != nil {
		batchID = j.BatchID.String()
	}

	ins := entsql.Dialect(d).
		Insert(jobsTable).
		Columns("id", "batch_id", "status", "upload_id", "configuration_id",
			"framework_name", "framework_version", "framework_full_name", "provider",
			"field_mappings", "custom_instructions", "progress_percentage", "progress_message",
			"seq", "created_at", "updated_at").
		Values(j.ID.String(), batchID, string(j.Status), j.UploadID.String(), j.ConfigurationID.String(),
			strArg(j.FrameworkName), strArg(j.FrameworkVersion), strArg(j.FrameworkFullName), j.Provider,
			mappings, strArg(j.CustomInstructions), j.ProgressPercentage, strArg(j.ProgressMessage),
			seq, j.CreatedAt, j.UpdatedAt)
	_, err = execBuilder(ctx, conn, ins)
	return err
}

func (r *jobRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	sel := entsql.Dialect(r.drv.Dialect()).
		Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.EQ("id", id.String()))

	jobs, err := r.list(ctx, sel)
	if err != nil {
		r.log.Error("job get failed", "job_id", id, "err", err)
		return nil, common.NewAppError("DB_ERROR", "get job", err)
	}
	if len(jobs) == 0 {
		return nil, common.NotFound("Job not found")
	}
	return jobs[0], nil
}

func (r *jobRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.Job, error) {
	sel := entsql.Dialect(r.drv.Dialect()).
		Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.EQ("batch_id", batchID.String())).
		OrderBy("seq", "created_at")

	jobs, err := r.list(ctx, sel)
	if err != nil {
		r.log.Error("job list failed", "batch_id", batchID, "err", err)
		return nil, common.NewAppError("DB_ERROR", "list jobs", err)
	}
	return jobs, nil
}

func (r *jobRepo) ListCompletedByBatch(ctx context.Context, batchID uuid.UUID) ([]*entity.Job, error) {
	sel := entsql.Dialect(r.drv.Dialect()).
		Select(jobColumns...).
		From(entsql.Table(jobsTable)).
		Where(entsql.And(
			entsql.EQ("batch_id", batchID.String()),
			entsql.EQ("status", string(constants.JobStatusCompleted)),
		)).
		OrderBy("seq", "created_at")

	jobs, err := r.list(ctx, sel)
	if err != nil {
		r.log.Error("completed job list failed", "batch_id", batchID, "err", err)
		return nil, common.NewAppError("DB_ERROR", "list completed jobs", err)
	}
	return jobs, nil
}

func (r *jobRepo) list(ctx context.Context, sel *entsql.Selector) ([]*entity.Job, error) {
	var out []*entity.Job
	err := queryBuilder(ctx, r.drv, sel, func(rows *entsql.Rows) error {
		j, err := scanJob(rows)
		if err != nil {
			return err
		}
		out = append(out, j)
		return nil
	})
	return out, err
}

func scanJob(rows *entsql.Rows) (*entity.Job, error) {
	var (
		j                                    entity.Job
		batchID                              uuid.NullUUID
		status                               string
		fwName, fwVersion, fwFullName        sql.NullString
		mappings, custom, progressMsg        sql.NullString
		jsonPath, excelPath, summary, errMsg sql.NullString
		completedAt                          sql.NullTime
	)
	if err := rows.Scan(&j.ID, &batchID, &status, &j.UploadID, &j.ConfigurationID,
		&fwName, &fwVersion, &fwFullName, &j.Provider,
		&mappings, &custom, &j.ProgressPercentage, &progressMsg,
		&jsonPath, &excelPath, &summary, &errMsg,
		&j.CreatedAt, &j.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}
	if batchID.Valid {
		id := batchID.UUID
		j.BatchID = &id
	}
	j.Status = constants.JobStatus(status)
	j.FrameworkName = strPtr(fwName)
	j.FrameworkVersion = strPtr(fwVersion)
	j.FrameworkFullName = strPtr(fwFullName)
	j.CustomInstructions = strPtr(custom)
	j.ProgressMessage = strPtr(progressMsg)
	j.OutputJSONPath = strPtr(jsonPath)
	j.OutputExcelPath = strPtr(excelPath)
	j.ErrorMessage = strPtr(errMsg)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	j.CompletedAt = timePtr(completedAt)
	if mappings.Valid && mappings.String != "" {
		if err := json.Unmarshal([]byte(mappings.String), &j.FieldMappings); err != nil {
			return nil, common.WrapError(err, "decode field mappings")
		}
	}
	if summary.Valid && summary.String != "" {
		var s entity.JobSummary
		if err := json.Unmarshal([]byte(summary.String), &s); err != nil {
			return nil, common.WrapError(err, "decode result summary")
		}
		j.ResultSummary = &s
	}
	return &j, nil
}

func notTerminal() *entsql.Predicate {
	return entsql.NotIn("status", string(constants.JobStatusCompleted), string(constants.JobStatusFailed))
}

// guarded runs an update and reports ErrJobNotWritable when no row matched.
func (r *jobRepo) guarded(ctx context.Context, upd *entsql.UpdateBuilder) error {
	res, err := execBuilder(ctx, r.drv, upd)
	if err != nil {
		return common.NewAppError("DB_ERROR", "update job", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.NewAppError("DB_ERROR", "update job", err)
	}
	if n == 0 {
		return ErrJobNotWritable
	}
	return nil
}

func (r *jobRepo) MarkRunning(ctx context.Context, id uuid.UUID, message string) error {
	upd := entsql.Dialect(r.drv.Dialect()).
		Update(jobsTable).
		Set("status", string(constants.JobStatusRunning)).
		Set("progress_percentage", 0).
		Set("progress_message", message).
		SetNull("error_message").
		Set("updated_at", now()).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.EQ("status", string(constants.JobStatusPending)),
		))
	if err := r.guarded(ctx, upd); err != nil {
		r.log.Error("job mark running failed", "job_id", id, "err", err)
		return err
	}
	r.log.Info("job running", "job_id", id)
	return nil
}

func (r *jobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, percentage int, message string) error {
	upd := entsql.Dialect(r.drv.Dialect()).
		Update(jobsTable).
		Set("progress_percentage", percentage).
		Set("progress_message", message).
		Set("updated_at", now()).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.EQ("status", string(constants.JobStatusRunning)),
			entsql.LTE("progress_percentage", percentage),
		))
	if err := r.guarded(ctx, upd); err != nil {
		r.log.Error("job progress update failed", "job_id", id, "percentage", percentage, "err", err)
		return err
	}
	r.log.Debug("job progress", "job_id", id, "percentage", percentage, "message", message)
	return nil
}

func (r *jobRepo) Complete(ctx context.Context, id uuid.UUID, result CompletedJob) error {
	summary, err := jsonArg(result.Summary)
	if err != nil {
		return common.WrapError(err, "encode result summary")
	}
	ts := now()
	upd := entsql.Dialect(r.drv.Dialect()).
		Update(jobsTable).
		Set("status", string(constants.JobStatusCompleted)).
		Set("progress_percentage", 100).
		Set("progress_message", result.Message).
		Set("output_json_path", result.OutputJSONPath).
		Set("output_excel_path", result.OutputExcelPath).
		Set("result_summary", summary).
		Set("updated_at", ts).
		Set("completed_at", ts).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.EQ("status", string(constants.JobStatusRunning)),
		))
	if err := r.guarded(ctx, upd); err != nil {
		r.log.Error("job complete failed", "job_id", id, "err", err)
		return err
	}
	r.log.Info("job completed", "job_id", id, "json", result.OutputJSONPath, "excel", result.OutputExcelPath)
	return nil
}

func (r *jobRepo) Fail(ctx context.Context, id uuid.UUID, errMessage, progressMessage string) error {
	upd := entsql.Dialect(r.drv.Dialect()).
		Update(jobsTable).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_message", errMessage).
		Set("progress_message", progressMessage).
		Set("updated_at", now()).
		Where(entsql.And(entsql.EQ("id", id.String()), notTerminal()))
	if err := r.guarded(ctx, upd); err != nil {
		r.log.Error("job fail update failed", "job_id", id, "err", err)
		return err
	}
	r.log.Warn("job failed", "job_id", id, "error", errMessage)
	return nil
}

// FailAbandoned fails every job left RUNNING by a previous process.
func (r *jobRepo) FailAbandoned(ctx context.Context, errMessage, progressMessage string) (int64, error) {
	upd := entsql.Dialect(r.drv.Dialect()).
		Update(jobsTable).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_message", errMessage).
		Set("progress_message", progressMessage).
		Set("updated_at", now()).
		Where(entsql.EQ("status", string(constants.JobStatusRunning)))
	res, err := execBuilder(ctx, r.drv, upd)
	if err != nil {
		r.log.Error("abandoned job recovery failed", "err", err)
		return 0, common.NewAppError("DB_ERROR", "fail abandoned jobs", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		r.log.Warn("abandoned jobs failed", "count", n)
	}
	return n, nil
}

// CountByStatus returns how many jobs are in each status. Statuses with no
// jobs are absent.
func (r *jobRepo) CountByStatus(ctx context.Context) (map[constants.JobStatus]int, error) {
	sel := entsql.Dialect(r.drv.Dialect()).
		Select("status", entsql.Count("*")).
		From(entsql.Table(jobsTable)).
		GroupBy("status")

	out := make(map[constants.JobStatus]int)
	err := queryBuilder(ctx, r.drv, sel, func(rows *entsql.Rows) error {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		out[constants.JobStatus(status)] = n
		return nil
	})
	if err != nil {
		r.log.Error("job status count failed", "err", err)
		return nil, common.NewAppError("DB_ERROR", "count jobs", err)
	}
	return out, nil
}
