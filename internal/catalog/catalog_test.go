package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joseph-ayodele/control-mapper/internal/common"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	root := t.TempDir()
	aws := filepath.Join(root, "aws", "services")
	writeFile(t, filepath.Join(aws, "iam", "iam_root_mfa_enabled", "iam_root_mfa_enabled.metadata.json"),
		`{"CheckID":"iam_root_mfa_enabled","CheckTitle":"Ensure MFA is enabled for the root account","ServiceName":"iam","Severity":"critical","Description":"Root MFA"}`)
	writeFile(t, filepath.Join(aws, "s3", "s3_bucket_public_access", "s3_bucket_public_access.metadata.json"),
		`{"CheckID":"s3_bucket_public_access","CheckTitle":"Block public access","ServiceName":"S3","Severity":"high","Description":"No public buckets"}`)
	writeFile(t, filepath.Join(aws, "s3", "broken.metadata.json"), `{not json`)
	writeFile(t, filepath.Join(aws, "s3", "README.md"), `ignored`)
	writeFile(t, filepath.Join(root, "aws", providerMeta), `{"display_name":"Amazon Web Services"}`)

	writeFile(t, filepath.Join(root, "gcp", "services", "iam", "iam_sa_no_keys.metadata.json"),
		`{"CheckID":"iam_sa_no_keys","CheckTitle":"No user-managed keys"}`)
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "_shared"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	return New(root, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestListProviders(t *testing.T) {
	c := newTestCatalog(t)
	got, err := c.ListProviders()
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	want := []Provider{
		{Name: "aws", DisplayName: "Amazon Web Services", CheckCount: 2},
		{Name: "empty", DisplayName: "EMPTY", CheckCount: 0},
		{Name: "gcp", DisplayName: "GCP", CheckCount: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("providers = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("providers[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestProviderExists(t *testing.T) {
	c := newTestCatalog(t)
	for name, want := range map[string]bool{"aws": true, "empty": true, "azure": false, "../aws": false, "_shared": false} {
		if got := c.ProviderExists(name); got != want {
			t.Errorf("ProviderExists(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestGetChecksFilters(t *testing.T) {
	c := newTestCatalog(t)

	total, page, err := c.GetChecks("aws", Filter{Service: "s3"})
	if err != nil {
		t.Fatalf("GetChecks: %v", err)
	}
	if total != 1 || page[0].CheckID != "s3_bucket_public_access" {
		t.Fatalf("service filter: total=%d page=%+v", total, page)
	}

	total, page, _ = c.GetChecks("aws", Filter{Search: "ROOT MFA"})
	if total != 1 || page[0].CheckID != "iam_root_mfa_enabled" {
		t.Fatalf("search: total=%d page=%+v", total, page)
	}

	total, page, _ = c.GetChecks("aws", Filter{Limit: 1, Offset: 1})
	if total != 2 || len(page) != 1 || page[0].CheckID != "s3_bucket_public_access" {
		t.Fatalf("pagination: total=%d page=%+v", total, page)
	}

	total, page, _ = c.GetChecks("aws", Filter{Offset: 10})
	if total != 2 || len(page) != 0 {
		t.Fatalf("offset past end: total=%d page=%+v", total, page)
	}

	total, _, _ = c.GetChecks("azure", Filter{})
	if total != 0 {
		t.Fatalf("unknown provider total = %d", total)
	}
}

func TestGetCheck(t *testing.T) {
	c := newTestCatalog(t)
	ch, err := c.GetCheck("gcp", "iam_sa_no_keys")
	if err != nil {
		t.Fatalf("GetCheck: %v", err)
	}
	if ch.CheckTitle != "No user-managed keys" {
		t.Fatalf("check = %+v", ch)
	}
	if _, err := c.GetCheck("gcp", "nope"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetChecksForPrompt(t *testing.T) {
	c := newTestCatalog(t)
	got, err := c.GetChecksForPrompt("aws")
	if err != nil {
		t.Fatalf("GetChecksForPrompt: %v", err)
	}
	want := "- iam_root_mfa_enabled: Ensure MFA is enabled for the root account (Service: iam, Severity: critical)\n" +
		"- s3_bucket_public_access: Block public access (Service: S3, Severity: high)"
	if got != want {
		t.Fatalf("prompt =\n%s\nwant\n%s", got, want)
	}

	got, _ = c.GetChecksForPrompt("gcp")
	if got != "- iam_sa_no_keys: No user-managed keys" {
		t.Fatalf("gcp prompt = %q", got)
	}

	got, _ = c.GetChecksForPrompt("empty")
	if got != "No checks found for provider: empty" {
		t.Fatalf("empty prompt = %q", got)
	}
}

func TestValidateCheckIDs(t *testing.T) {
	c := newTestCatalog(t)
	valid, invalid, err := c.ValidateCheckIDs("aws", []string{"s3_bucket_public_access", "made_up", "iam_root_mfa_enabled"})
	if err != nil {
		t.Fatalf("ValidateCheckIDs: %v", err)
	}
	if strings.Join(valid, ",") != "s3_bucket_public_access,iam_root_mfa_enabled" {
		t.Fatalf("valid = %v", valid)
	}
	if strings.Join(invalid, ",") != "made_up" {
		t.Fatalf("invalid = %v", invalid)
	}
}

func TestDebugInfo(t *testing.T) {
	c := newTestCatalog(t)
	info := c.DebugInfo()
	if info["providers_dir_exists"] != true {
		t.Fatalf("info = %v", info)
	}
	providers := info["providers"].([]map[string]any)
	if len(providers) != 3 {
		t.Fatalf("providers = %v", providers)
	}
	if providers[0]["name"] != "aws" || providers[0]["check_count"] != 3 {
		t.Fatalf("aws debug = %v", providers[0])
	}

	missing := New(filepath.Join(t.TempDir(), "nope"), nil)
	info = missing.DebugInfo()
	if errs := info["errors"].([]string); len(errs) != 1 {
		t.Fatalf("errors = %v", errs)
	}
}

func TestWatchReloadsOnMetadataChange(t *testing.T) {
	c := newTestCatalog(t)
	if total, _, _ := c.GetChecks("gcp", Filter{}); total != 1 {
		t.Fatalf("initial total = %d", total)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, 20*time.Millisecond) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher a moment to register its directories.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(c.Root(), "gcp", "services", "iam", "iam_no_primitive_roles.metadata.json"),
		`{"CheckID":"iam_no_primitive_roles","CheckTitle":"No primitive roles"}`)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if total, _, _ := c.GetChecks("gcp", Filter{}); total == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("catalog did not pick up the new check")
}
