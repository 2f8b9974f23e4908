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

const configurationsTable = "configurations"

var configurationColumns = []string{
	"id", "upload_id", "framework_name", "framework_version", "framework_full_name",
	"framework_description", "providers", "enable_subgroup", "field_mappings",
	"custom_instructions", "created_at",
}

type ConfigurationRepository interface {
	Create(ctx context.Context, c *entity.Configuration) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Configuration, error)
}

type configurationRepo struct {
	drv *entsql.Driver
	log *slog.Logger
}

func NewConfigurationRepository(drv *entsql.Driver, log *slog.Logger) ConfigurationRepository {
	if log == nil {
		log = slog.Default()
	}
	return &configurationRepo{drv: drv, log: log}
}

func (r *configurationRepo) Create(ctx context.Context, c *entity.Configuration) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now()
	}
	providers, err := jsonArg(c.Providers)
	if err != nil {
		return common.WrapError(err, "encode providers")
	}
	mappings, err := jsonArg(c.FieldMappings)
	if err != nil {
		return common.WrapError(err, "encode field mappings")
	}

	ins := entsql.Dialect(r.drv.Dialect()).
		Insert(configurationsTable).
		Columns(configurationColumns...).
		Values(c.ID.String(), c.UploadID.String(), c.FrameworkName, strArg(c.FrameworkVersion),
			strArg(c.FrameworkFullName), strArg(c.FrameworkDescription), providers,
			c.EnableSubgroup, mappings, strArg(c.CustomInstructions), c.CreatedAt)
	if _, err := execBuilder(ctx, r.drv, ins); err != nil {
		r.log.Error("configuration create failed", "configuration_id", c.ID, "upload_id", c.UploadID, "err", err)
		return common.NewAppError("DB_ERROR", "create configuration", err)
	}
	r.log.Info("configuration created", "configuration_id", c.ID, "upload_id", c.UploadID, "providers", c.Providers)
	return nil
}

func (r *configurationRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Configuration, error) {
	sel := entsql.Dialect(r.drv.Dialect()).
		Select(configurationColumns...).
		From(entsql.Table(configurationsTable)).
		Where(entsql.EQ("id", id.String()))

	var out *entity.Configuration
	err := queryBuilder(ctx, r.drv, sel, func(rows *entsql.Rows) error {
		var (
			c                               entity.Configuration
			version, fullName, desc, custom sql.NullString
			providers, mappings             string
		)
		if err := rows.Scan(&c.ID, &c.UploadID, &c.FrameworkName, &version, &fullName, &desc,
			&providers, &c.EnableSubgroup, &mappings, &custom, &c.CreatedAt); err != nil {
			return err
		}
		c.FrameworkVersion = strPtr(version)
		c.FrameworkFullName = strPtr(fullName)
		c.FrameworkDescription = strPtr(desc)
		c.CustomInstructions = strPtr(custom)
		if err := json.Unmarshal([]byte(providers), &c.Providers); err != nil {
			return common.WrapError(err, "decode providers")
		}
		if mappings != "" {
			if err := json.Unmarshal([]byte(mappings), &c.FieldMappings); err != nil {
				return common.WrapError(err, "decode field mappings")
			}
		}
		c.CreatedAt = c.CreatedAt.UTC()
		out = &c
		return nil
	})
	if err != nil {
		r.log.Error("configuration get failed", "configuration_id", id, "err", err)
		return nil, common.NewAppError("DB_ERROR", "get configuration", err)
	}
	if out == nil {
		return nil, common.NotFound("Configuration not found")
	}
	return out, nil
}
