package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
	"github.com/joseph-ayodele/control-mapper/internal/jobs"
	repo "github.com/joseph-ayodele/control-mapper/internal/repository"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	root := t.TempDir()
	return &common.Config{
		Database: common.DatabaseConfig{
			DSN:         filepath.Join(root, "db", "jobs.db"),
			MaxConns:    4,
			DialTimeout: 5 * time.Second,
		},
		Storage: common.StorageConfig{
			UploadDir:     filepath.Join(root, "uploads"),
			OutputDir:     filepath.Join(root, "outputs"),
			ProvidersDir:  filepath.Join(root, "providers"),
			PromptsDir:    filepath.Join(root, "prompts"),
			MaxUploadSize: constants.MaxUploadSizeDefault,
		},
		Claude: common.ClaudeConfig{
			Binary:    "claude",
			Timeout:   time.Minute,
			Workers:   1,
			QueueSize: 4,
		},
	}
}

// leaveRunningJob simulates a process that died mid-job.
func leaveRunningJob(t *testing.T, cfg *common.Config) *entity.Job {
	t.Helper()
	ctx := context.Background()
	db, err := repo.Open(ctx, repo.Config{DSN: cfg.Database.DSN, MaxConns: 4}, quiet())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close(db, quiet())
	if err := repo.Migrate(ctx, db, quiet()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	text := "1.1 Ensure MFA"
	u := &entity.Upload{Filename: "cis.txt", FileType: "txt", FilePath: "/tmp/cis.txt", FileSize: 14, ExtractedText: &text}
	if err := repo.NewUploadRepository(db.Driver(), quiet()).Create(ctx, u); err != nil {
		t.Fatalf("create upload: %v", err)
	}
	c := &entity.Configuration{UploadID: u.ID, FrameworkName: "CIS", Providers: []string{"aws"}, EnableSubgroup: true}
	if err := repo.NewConfigurationRepository(db.Driver(), quiet()).Create(ctx, c); err != nil {
		t.Fatalf("create configuration: %v", err)
	}
	j := &entity.Job{UploadID: u.ID, ConfigurationID: c.ID, FrameworkName: &c.FrameworkName, Provider: "aws"}
	b := &entity.Batch{ConfigurationID: c.ID, UploadID: u.ID, FrameworkName: "CIS"}
	if err := repo.NewBatchRepository(db.Driver(), quiet()).CreateWithJobs(ctx, b, []*entity.Job{j}); err != nil {
		t.Fatalf("CreateWithJobs: %v", err)
	}
	if err := repo.NewJobRepository(db.Driver(), quiet()).MarkRunning(ctx, j.ID, jobs.MsgStarting); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	return j
}

func TestNewFailsAbandonedJobs(t *testing.T) {
	cfg := testConfig(t)
	abandoned := leaveRunningJob(t, cfg)

	ctx := context.Background()
	a, err := New(ctx, cfg, quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close(ctx)

	got, err := a.Jobs.Get(ctx, abandoned.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != constants.JobStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != jobs.MsgAbandoned {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
	if a.Coordinator.IsRunning(abandoned.ID) {
		t.Fatalf("abandoned job must not be resumed")
	}
}

func TestNewBuildsServices(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	a, err := New(ctx, cfg, quiet())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close(ctx)

	if a.Uploads == nil || a.Configure == nil || a.Mapping == nil || a.Catalog == nil || a.Invoker == nil {
		t.Fatalf("app is missing a service: %+v", a)
	}
	// watching is off by default and must not block
	a.WatchCatalog(ctx)
}
