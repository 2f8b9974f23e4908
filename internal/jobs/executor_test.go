package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
	"github.com/joseph-ayodele/control-mapper/internal/export"
	"github.com/joseph-ayodele/control-mapper/internal/prompt"
	"github.com/joseph-ayodele/control-mapper/internal/repository"
)

const sampleOutput = `{
  "Framework": "CIS",
  "Name": "whatever the tool called it",
  "Provider": "amazon",
  "Requirements": [
    {"Id": "1.1", "Name": "MFA", "Attributes": [{"ItemId": "1.1", "Section": "IAM", "SubGroup": "Root"}],
     "Checks": ["iam_root_mfa_enabled", "made_up_check"]},
    {"Id": "1.2", "Name": "Logging", "Attributes": [{"ItemId": "1.2", "Section": "Logging"}], "Checks": []}
  ]
}`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeChecks struct{}

func (fakeChecks) GetChecksForPrompt(provider string) (string, error) {
	return "- iam_root_mfa_enabled: Ensure MFA is enabled for the root account (Service: iam)", nil
}

func (fakeChecks) ValidateCheckIDs(_ string, ids []string) ([]string, []string, error) {
	var valid, invalid []string
	for _, id := range ids {
		if id == "iam_root_mfa_enabled" {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid, nil
}

type fakeInvoker struct {
	mu     sync.Mutex
	prompt string
	system string
	fn     func(ctx context.Context) (map[string]any, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, p, s string, _ time.Duration) (map[string]any, error) {
	f.mu.Lock()
	f.prompt, f.system = p, s
	f.mu.Unlock()
	return f.fn(ctx)
}

func returning(body string) func(context.Context) (map[string]any, error) {
	return func(context.Context) (map[string]any, error) {
		var m map[string]any
		if err := json.Unmarshal([]byte(body), &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

type harness struct {
	jobs     repository.JobRepository
	uploads  repository.UploadRepository
	configs  repository.ConfigurationRepository
	batches  repository.BatchRepository
	invoker  *fakeInvoker
	exec     *Executor
	outDir   string
	upload   *entity.Upload
	config   *entity.Configuration
	provider string
}

func newHarness(t *testing.T, extracted string) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{
		DSN:         filepath.Join(t.TempDir(), "jobs.db"),
		MaxConns:    4,
		DialTimeout: 5 * time.Second,
	}, quietLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { repository.Close(db, quietLogger()) })
	if err := repository.Migrate(ctx, db, quietLogger()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	h := &harness{
		jobs:     repository.NewJobRepository(db.Driver(), quietLogger()),
		uploads:  repository.NewUploadRepository(db.Driver(), quietLogger()),
		configs:  repository.NewConfigurationRepository(db.Driver(), quietLogger()),
		batches:  repository.NewBatchRepository(db.Driver(), quietLogger()),
		invoker:  &fakeInvoker{fn: returning(sampleOutput)},
		outDir:   filepath.Join(t.TempDir(), "outputs"),
		provider: "aws",
	}
	exporter, err := export.NewService(h.outDir, quietLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.exec = NewExecutor(quietLogger(), ExecutorConfig{Timeout: time.Minute},
		h.jobs, h.uploads, h.configs, fakeChecks{}, prompt.NewBuilder("", quietLogger()), h.invoker, exporter)

	h.upload = &entity.Upload{Filename: "cis.txt", FileType: "txt", FilePath: "/tmp/cis.txt", FileSize: 10, ExtractedText: &extracted}
	if err := h.uploads.Create(ctx, h.upload); err != nil {
		t.Fatalf("create upload: %v", err)
	}
	fullName := "CIS Amazon Web Services Foundations Benchmark"
	h.config = &entity.Configuration{
		UploadID:          h.upload.ID,
		FrameworkName:     "CIS",
		FrameworkFullName: &fullName,
		Providers:         []string{"aws"},
		EnableSubgroup:    false,
	}
	if err := h.configs.Create(ctx, h.config); err != nil {
		t.Fatalf("create configuration: %v", err)
	}
	return h
}

func (h *harness) newJob(t *testing.T) uuid.UUID {
	t.Helper()
	queued := "Job queued..."
	j := &entity.Job{
		UploadID:        h.upload.ID,
		ConfigurationID: h.config.ID,
		FrameworkName:   &h.config.FrameworkName,
		Provider:        h.provider,
		ProgressMessage: &queued,
	}
	if err := h.jobs.Create(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j.ID
}

func (h *harness) get(t *testing.T, id uuid.UUID) *entity.Job {
	t.Helper()
	j, err := h.jobs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return j
}

func TestExecutorCompletesJob(t *testing.T) {
	h := newHarness(t, "1.1 Ensure MFA is enabled for the root account")
	id := h.newJob(t)

	h.exec.Run(context.Background(), id)

	j := h.get(t, id)
	if j.Status != constants.JobStatusCompleted {
		t.Fatalf("status = %q, error = %v", j.Status, j.ErrorMessage)
	}
	if j.ProgressPercentage != 100 || j.ProgressMessage == nil || *j.ProgressMessage != MsgCompleted {
		t.Fatalf("progress = %d %v", j.ProgressPercentage, j.ProgressMessage)
	}
	want := entity.JobSummary{TotalControls: 2, ControlsWithChecks: 1, TotalCheckMappings: 2, UnmappedControls: 1}
	if j.ResultSummary == nil || *j.ResultSummary != want {
		t.Fatalf("summary = %+v, want %+v", j.ResultSummary, want)
	}
	if !strings.Contains(h.invoker.prompt, "1.1 Ensure MFA is enabled") {
		t.Fatalf("document text missing from prompt")
	}
	if !strings.Contains(h.invoker.prompt, "iam_root_mfa_enabled") {
		t.Fatalf("check list missing from prompt")
	}
	if h.invoker.system == "" {
		t.Fatalf("system prompt empty")
	}

	if j.OutputJSONPath == nil || j.OutputExcelPath == nil {
		t.Fatalf("artifact paths not recorded")
	}
	if filepath.Base(*j.OutputJSONPath) != "CIS_aws.json" {
		t.Fatalf("json name = %s", filepath.Base(*j.OutputJSONPath))
	}
	if _, err := os.Stat(*j.OutputExcelPath); err != nil {
		t.Fatalf("excel artifact: %v", err)
	}

	raw, err := os.ReadFile(*j.OutputJSONPath)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["Provider"] != "AWS" {
		t.Fatalf("Provider = %v, want canonical display name", got["Provider"])
	}
	if got["Name"] != "CIS Amazon Web Services Foundations Benchmark" {
		t.Fatalf("Name = %v, want configured full name", got["Name"])
	}
	if strings.Contains(string(raw), "SubGroup") {
		t.Fatalf("SubGroup kept with subgroups disabled:\n%s", raw)
	}
}

func TestExecutorToolFailureKeepsProgress(t *testing.T) {
	h := newHarness(t, "some text")
	h.invoker.fn = func(context.Context) (map[string]any, error) {
		return nil, common.NewAppError("TOOL_TIMEOUT", "Claude Code execution timed out after 60 seconds", common.ErrToolTimeout)
	}
	id := h.newJob(t)

	h.exec.Run(context.Background(), id)

	j := h.get(t, id)
	if j.Status != constants.JobStatusFailed {
		t.Fatalf("status = %q", j.Status)
	}
	if j.ProgressPercentage != 10 {
		t.Fatalf("percentage = %d, want 10", j.ProgressPercentage)
	}
	if j.ErrorMessage == nil || *j.ErrorMessage != "Claude Code execution timed out after 60 seconds" {
		t.Fatalf("error = %v", j.ErrorMessage)
	}
	if j.ProgressMessage == nil || *j.ProgressMessage != MsgFailed {
		t.Fatalf("progress message = %v", j.ProgressMessage)
	}
}

func TestExecutorValidationFailure(t *testing.T) {
	h := newHarness(t, "some text")
	h.invoker.fn = returning(`{"Framework": "CIS", "Requirements": "not a list"}`)
	id := h.newJob(t)

	h.exec.Run(context.Background(), id)

	j := h.get(t, id)
	if j.Status != constants.JobStatusFailed || j.ProgressPercentage != 70 {
		t.Fatalf("status = %q percentage = %d", j.Status, j.ProgressPercentage)
	}
	if j.ErrorMessage == nil || !strings.HasPrefix(*j.ErrorMessage, "Output validation failed") {
		t.Fatalf("error = %v", j.ErrorMessage)
	}
	if j.OutputJSONPath != nil {
		t.Fatalf("artifacts recorded for failed job")
	}
}

func TestExecutorEmptyExtractedText(t *testing.T) {
	h := newHarness(t, "   ")
	called := false
	h.invoker.fn = func(context.Context) (map[string]any, error) {
		called = true
		return nil, nil
	}
	id := h.newJob(t)

	h.exec.Run(context.Background(), id)

	j := h.get(t, id)
	if j.Status != constants.JobStatusFailed || j.ErrorMessage == nil || *j.ErrorMessage != "No extracted text found in upload" {
		t.Fatalf("status = %q error = %v", j.Status, j.ErrorMessage)
	}
	if called {
		t.Fatalf("tool invoked without document text")
	}
}

func TestExecutorRecoversPanic(t *testing.T) {
	h := newHarness(t, "some text")
	h.invoker.fn = func(context.Context) (map[string]any, error) { panic("boom") }
	id := h.newJob(t)

	h.exec.Run(context.Background(), id)

	j := h.get(t, id)
	if j.Status != constants.JobStatusFailed || j.ErrorMessage == nil || !strings.Contains(*j.ErrorMessage, "boom") {
		t.Fatalf("status = %q error = %v", j.Status, j.ErrorMessage)
	}
}

func TestExecutorCancellation(t *testing.T) {
	h := newHarness(t, "some text")
	started := make(chan struct{})
	h.invoker.fn = func(ctx context.Context) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	id := h.newJob(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); h.exec.Run(ctx, id) }()
	<-started
	cancel()
	<-done

	j := h.get(t, id)
	if j.Status != constants.JobStatusFailed || j.ErrorMessage == nil || *j.ErrorMessage != MsgCancelled {
		t.Fatalf("status = %q error = %v", j.Status, j.ErrorMessage)
	}
}

func TestExecutorMissingJobIsIgnored(t *testing.T) {
	h := newHarness(t, "some text")
	h.invoker.fn = func(context.Context) (map[string]any, error) {
		t.Fatalf("tool invoked for a missing job")
		return nil, errors.New("unreachable")
	}
	h.exec.Run(context.Background(), uuid.New())
}

func TestExecutorTerminalJobIsNotRerun(t *testing.T) {
	h := newHarness(t, "some text")
	id := h.newJob(t)
	h.exec.Run(context.Background(), id)

	h.invoker.fn = returning(`{"Framework": "other"}`)
	h.exec.Run(context.Background(), id)

	if j := h.get(t, id); j.Status != constants.JobStatusCompleted {
		t.Fatalf("completed job moved to %q", j.Status)
	}
}

func TestExecutorLeavesRunningJobAlone(t *testing.T) {
	h := newHarness(t, "some text")
	id := h.newJob(t)
	if err := h.jobs.MarkRunning(context.Background(), id, MsgStarting); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	h.invoker.fn = func(context.Context) (map[string]any, error) {
		t.Fatalf("tool invoked for a job another run owns")
		return nil, errors.New("unreachable")
	}

	h.exec.Run(context.Background(), id)

	j := h.get(t, id)
	if j.Status != constants.JobStatusRunning || j.ErrorMessage != nil {
		t.Fatalf("status = %q error = %v, want running untouched", j.Status, j.ErrorMessage)
	}
}
