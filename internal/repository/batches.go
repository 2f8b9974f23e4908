package repository

import (
	"context"
	"database/sql"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
)

const batchesTable = "batches"

var batchColumns = []string{
	"id", "configuration_id", "upload_id", "framework_name",
	"created_at", "updated_at", "completed_at",
}

type BatchRepository interface {
	// CreateWithJobs inserts the batch and its jobs in one transaction.
	// Jobs keep the given order.
	CreateWithJobs(ctx context.Context, b *entity.Batch, jobs []*entity.Job) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}

type batchRepo struct {
	drv *entsql.Driver
	log *slog.Logger
}

func NewBatchRepository(drv *entsql.Driver, log *slog.Logger) BatchRepository {
	if log == nil {
		log = slog.Default()
	}
	return &batchRepo{drv: drv, log: log}
}

func (r *batchRepo) CreateWithJobs(ctx context.Context, b *entity.Batch, jobs []*entity.Job) (err error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	ts := now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = ts
	}
	b.UpdatedAt = b.CreatedAt

	tx, err := r.drv.Tx(ctx)
	if err != nil {
		r.log.Error("batch tx begin failed", "batch_id", b.ID, "err", err)
		return common.NewAppError("DB_ERROR", "begin batch transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Error("batch tx rollback failed", "batch_id", b.ID, "err", rbErr)
			}
		}
	}()

	d := r.drv.Dialect()
	ins := entsql.Dialect(d).
		Insert(batchesTable).
		Columns("id", "configuration_id", "upload_id", "framework_name", "created_at", "updated_at").
		Values(b.ID.String(), b.ConfigurationID.String(), b.UploadID.String(), b.FrameworkName, b.CreatedAt, b.UpdatedAt)
	if _, err = execBuilder(ctx, tx, ins); err != nil {
		r.log.Error("batch create failed", "batch_id", b.ID, "err", err)
		return common.NewAppError("DB_ERROR", "create batch", err)
	}

	for i, j := range jobs {
		id := b.ID
		j.BatchID = &id
		j.CreatedAt = b.CreatedAt
		if err = insertJob(ctx, tx, d, j, i); err != nil {
			r.log.Error("batch job create failed", "batch_id", b.ID, "provider", j.Provider, "err", err)
			return common.NewAppError("DB_ERROR", "create batch job", err)
		}
	}

	if err = tx.Commit(); err != nil {
		r.log.Error("batch tx commit failed", "batch_id", b.ID, "err", err)
		return common.NewAppError("DB_ERROR", "commit batch", err)
	}
	r.log.Info("batch created", "batch_id", b.ID, "jobs", len(jobs), "framework", b.FrameworkName)
	return nil
}

func (r *batchRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Batch, error) {
	sel := entsql.Dialect(r.drv.Dialect()).
		Select(batchColumns...).
		From(entsql.Table(batchesTable)).
		Where(entsql.EQ("id", id.String()))

	var out *entity.Batch
	err := queryBuilder(ctx, r.drv, sel, func(rows *entsql.Rows) error {
		var (
			b           entity.Batch
			completedAt sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.ConfigurationID, &b.UploadID, &b.FrameworkName,
			&b.CreatedAt, &b.UpdatedAt, &completedAt); err != nil {
			return err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		b.UpdatedAt = b.UpdatedAt.UTC()
		b.CompletedAt = timePtr(completedAt)
		out = &b
		return nil
	})
	if err != nil {
		r.log.Error("batch get failed", "batch_id", id, "err", err)
		return nil, common.NewAppError("DB_ERROR", "get batch", err)
	}
	if out == nil {
		return nil, common.NotFound("Batch not found")
	}
	return out, nil
}

// MarkCompleted stamps completed_at and updated_at once the batch driver finishes.
func (r *batchRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	ts := now()
	upd := entsql.Dialect(r.drv.Dialect()).
		Update(batchesTable).
		Set("completed_at", ts).
		Set("updated_at", ts).
		Where(entsql.EQ("id", id.String()))
	if _, err := execBuilder(ctx, r.drv, upd); err != nil {
		r.log.Error("batch complete failed", "batch_id", id, "err", err)
		return common.NewAppError("DB_ERROR", "complete batch", err)
	}
	r.log.Info("batch completed", "batch_id", id)
	return nil
}
