package configure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
	"github.com/joseph-ayodele/control-mapper/internal/repository"
)

// Catalog is what configuring needs to know about providers.
type Catalog interface {
	ProviderExists(provider string) bool
	ProviderNames() []string
	GetChecks(provider string, f catalog.Filter) (int, []catalog.Check, error)
}

// Service records mapping configurations against uploads.
type Service struct {
	uploads repository.UploadRepository
	configs repository.ConfigurationRepository
	catalog Catalog
	logger  *slog.Logger
}

func NewService(uploads repository.UploadRepository, configs repository.ConfigurationRepository, cat Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uploads: uploads, configs: configs, catalog: cat, logger: logger}
}

// Request configures one upload for mapping. EnableSubgroup defaults to true.
type Request struct {
	UploadID             string               `json:"upload_id"`
	FrameworkName        string               `json:"framework_name"`
	FrameworkVersion     *string              `json:"framework_version,omitempty"`
	FrameworkFullName    *string              `json:"framework_full_name,omitempty"`
	FrameworkDescription *string              `json:"framework_description,omitempty"`
	Providers            []string             `json:"providers"`
	EnableSubgroup       *bool                `json:"enable_subgroup,omitempty"`
	FieldMappings        entity.FieldMappings `json:"field_mappings"`
	CustomInstructions   *string              `json:"custom_instructions,omitempty"`
}

type ProviderInfo struct {
	Name       string `json:"name"`
	CheckCount int    `json:"check_count"`
}

type Result struct {
	ConfigurationID uuid.UUID      `json:"configuration_id"`
	Providers       []ProviderInfo `json:"providers"`
	TotalChecks     int            `json:"total_checks"`
}

func (s *Service) Configure(ctx context.Context, req Request) (*Result, error) {
	v := common.NewValidator()
	v.Field("upload_id", req.UploadID, common.Required)
	v.Field("framework_name", req.FrameworkName, common.Required, common.MaxLength(200))
	v.Field("providers", req.Providers, common.Required)
	if err := v.Err(); err != nil {
		return nil, err
	}

	uploadID, err := common.ParseID("Upload", req.UploadID)
	if err != nil {
		return nil, err
	}
	if _, err := s.uploads.Get(ctx, uploadID); err != nil {
		return nil, err
	}

	infos := make([]ProviderInfo, 0, len(req.Providers))
	providers := make([]string, 0, len(req.Providers))
	total := 0
	for _, p := range req.Providers {
		p = strings.TrimSpace(p)
		if !s.catalog.ProviderExists(p) {
			return nil, common.InvalidInputf("Provider '%s' not found. Available: %s",
				p, strings.Join(s.catalog.ProviderNames(), ", "))
		}
		n, _, err := s.catalog.GetChecks(p, catalog.Filter{Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("count checks for %s: %w", p, err)
		}
		infos = append(infos, ProviderInfo{Name: p, CheckCount: n})
		providers = append(providers, p)
		total += n
	}

	enableSubgroup := true
	if req.EnableSubgroup != nil {
		enableSubgroup = *req.EnableSubgroup
	}
	c := &entity.Configuration{
		UploadID:             uploadID,
		FrameworkName:        strings.TrimSpace(req.FrameworkName),
		FrameworkVersion:     trimmed(req.FrameworkVersion),
		FrameworkFullName:    trimmed(req.FrameworkFullName),
		FrameworkDescription: trimmed(req.FrameworkDescription),
		Providers:            providers,
		EnableSubgroup:       enableSubgroup,
		FieldMappings:        req.FieldMappings,
		CustomInstructions:   trimmed(req.CustomInstructions),
	}
	if err := s.configs.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("configuration created",
		"configuration_id", c.ID, "upload_id", uploadID,
		"framework", c.FrameworkName, "providers", providers, "total_checks", total)
	return &Result{ConfigurationID: c.ID, Providers: infos, TotalChecks: total}, nil
}

// trimmed drops blank optional strings.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
