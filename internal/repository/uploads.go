package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
)

const uploadsTable = "uploads"

var uploadColumns = []string{
	"id", "filename", "file_type", "file_path", "file_size",
	"extracted_text", "preview", "structure", "created_at",
}

type UploadRepository interface {
	Create(ctx context.Context, u *entity.Upload) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Upload, error)
}

type uploadRepo struct {
	drv *entsql.Driver
	log *slog.Logger
}

func NewUploadRepository(drv *entsql.Driver, log *slog.Logger) UploadRepository {
	if log == nil {
		log = slog.Default()
	}
	return &uploadRepo{drv: drv, log: log}
}

func (r *uploadRepo) Create(ctx context.Context, u *entity.Upload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}
	var structure any
	if u.Structure != nil {
		s, err := jsonArg(u.Structure)
		if err != nil {
			return common.WrapError(err, "encode upload structure")
		}
		structure = s
	}

	ins := entsql.Dialect(r.drv.Dialect()).
		Insert(uploadsTable).
		Columns(uploadColumns...).
		Values(u.ID.String(), u.Filename, u.FileType, u.FilePath, u.FileSize,
			strArg(u.ExtractedText), strArg(u.Preview), structure, u.CreatedAt)
	if _, err := execBuilder(ctx, r.drv, ins); err != nil {
		r.log.Error("upload create failed", "upload_id", u.ID, "err", err)
		return common.NewAppError("DB_ERROR", "create upload", err)
	}
	r.log.Info("upload created", "upload_id", u.ID, "file_type", u.FileType, "size_bytes", u.FileSize)
	return nil
}

func (r *uploadRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Upload, error) {
	sel := entsql.Dialect(r.drv.Dialect()).
		Select(uploadColumns...).
		From(entsql.Table(uploadsTable)).
		Where(entsql.EQ("id", id.String()))

	var out *entity.Upload
	err := queryBuilder(ctx, r.drv, sel, func(rows *entsql.Rows) error {
		var (
			u                        entity.Upload
			text, preview, structure sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.Filename, &u.FileType, &u.FilePath, &u.FileSize,
			&text, &preview, &structure, &u.CreatedAt); err != nil {
			return err
		}
		u.ExtractedText = strPtr(text)
		u.Preview = strPtr(preview)
		if structure.Valid && structure.String != "" {
			if err := json.Unmarshal([]byte(structure.String), &u.Structure); err != nil {
				r.log.Warn("upload structure unreadable", "upload_id", id, "err", err)
			}
		}
		u.CreatedAt = u.CreatedAt.UTC()
		out = &u
		return nil
	})
	if err != nil {
		r.log.Error("upload get failed", "upload_id", id, "err", err)
		return nil, common.NewAppError("DB_ERROR", "get upload", err)
	}
	if out == nil {
		return nil, common.NotFound("Upload not found")
	}
	return out, nil
}
