package configure

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
)

type memUploads map[uuid.UUID]*entity.Upload

func (m memUploads) Create(_ context.Context, u *entity.Upload) error { m[u.ID] = u; return nil }
func (m memUploads) Get(_ context.Context, id uuid.UUID) (*entity.Upload, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, common.NotFound("Upload not found")
}

type memConfigs map[uuid.UUID]*entity.Configuration

func (m memConfigs) Create(_ context.Context, c *entity.Configuration) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m[c.ID] = c
	return nil
}
func (m memConfigs) Get(_ context.Context, id uuid.UUID) (*entity.Configuration, error) {
	if c, ok := m[id]; ok {
		return c, nil
	}
	return nil, common.NotFound("Configuration not found")
}

type fakeCatalog map[string]int

func (f fakeCatalog) ProviderExists(p string) bool { _, ok := f[p]; return ok }
func (f fakeCatalog) ProviderNames() []string      { return []string{"aws", "gcp"} }
func (f fakeCatalog) GetChecks(p string, _ catalog.Filter) (int, []catalog.Check, error) {
	return f[p], nil, nil
}

func setup(t *testing.T) (*Service, memConfigs, uuid.UUID) {
	t.Helper()
	uploads := memUploads{}
	u := &entity.Upload{ID: uuid.New(), Filename: "cis.csv"}
	uploads[u.ID] = u
	configs := memConfigs{}
	svc := NewService(uploads, configs, fakeCatalog{"aws": 120, "gcp": 80}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, configs, u.ID
}

func TestConfigure(t *testing.T) {
	svc, configs, uploadID := setup(t)
	blank := "  "
	res, err := svc.Configure(context.Background(), Request{
		UploadID:          uploadID.String(),
		FrameworkName:     " CIS ",
		FrameworkFullName: &blank,
		Providers:         []string{"aws", "gcp"},
		FieldMappings:     entity.FieldMappings{IDField: "Control"},
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if res.TotalChecks != 200 || len(res.Providers) != 2 || res.Providers[1].CheckCount != 80 {
		t.Fatalf("result = %+v", res)
	}
	c := configs[res.ConfigurationID]
	if c == nil {
		t.Fatalf("configuration not stored")
	}
	if c.FrameworkName != "CIS" || c.FrameworkFullName != nil {
		t.Fatalf("stored = %+v", c)
	}
	if !c.EnableSubgroup {
		t.Fatalf("enable_subgroup should default to true")
	}
}

func TestConfigureRejections(t *testing.T) {
	svc, _, uploadID := setup(t)
	ctx := context.Background()

	_, err := svc.Configure(ctx, Request{UploadID: uploadID.String(), FrameworkName: "CIS", Providers: []string{"aws", "oci"}})
	if !errors.Is(err, common.ErrInvalidInput) || common.Message(err) != "Provider 'oci' not found. Available: aws, gcp" {
		t.Fatalf("unknown provider err = %v", err)
	}

	_, err = svc.Configure(ctx, Request{UploadID: uuid.NewString(), FrameworkName: "CIS", Providers: []string{"aws"}})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("missing upload err = %v", err)
	}

	_, err = svc.Configure(ctx, Request{UploadID: uploadID.String(), FrameworkName: "CIS"})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("no providers err = %v", err)
	}
}
