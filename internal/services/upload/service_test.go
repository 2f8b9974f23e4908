package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
	"github.com/joseph-ayodele/control-mapper/internal/ingest"
)

type memUploads struct {
	created []*entity.Upload
}

func (m *memUploads) Create(_ context.Context, u *entity.Upload) error {
	m.created = append(m.created, u)
	return nil
}

func (m *memUploads) Get(_ context.Context, id uuid.UUID) (*entity.Upload, error) {
	for _, u := range m.created {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, common.NotFound("Upload not found")
}

type stubExtractor struct {
	err  error
	seen string
}

func (s *stubExtractor) Extract(_ context.Context, path string) (ingest.Result, error) {
	s.seen = path
	if s.err != nil {
		return ingest.Result{}, s.err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ingest.Result{}, err
	}
	return ingest.Result{
		FileType:  constants.FileTypeTXT,
		Text:      string(raw),
		Preview:   ingest.Preview(string(raw), 10),
		Structure: map[string]any{"line_count": 1},
	}, nil
}

func newService(t *testing.T, ex Extractor, max int64) (*Service, *memUploads, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	repo := &memUploads{}
	return NewService(Config{Dir: dir, MaxSize: max}, repo, ex, slog.New(slog.NewTextHandler(io.Discard, nil))), repo, dir
}

func TestUploadStoresAndExtracts(t *testing.T) {
	ex := &stubExtractor{}
	svc, repo, dir := newService(t, ex, 1024)

	res, err := svc.Upload(context.Background(), "controls.TXT", strings.NewReader("1.1 Ensure MFA is enabled"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.FileType != "txt" || res.SizeBytes != 25 || res.Filename != "controls.TXT" {
		t.Fatalf("result = %+v", res)
	}
	if want := filepath.Join(dir, res.UploadID.String()+".txt"); ex.seen != want {
		t.Fatalf("stored at %s, want %s", ex.seen, want)
	}
	if len(repo.created) != 1 || *repo.created[0].ExtractedText != "1.1 Ensure MFA is enabled" {
		t.Fatalf("persisted = %+v", repo.created)
	}
}

func TestUploadRejections(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		body     string
		sentinel error
		message  string
	}{
		{"no filename", "  ", "x", common.ErrInvalidInput, "No filename provided"},
		{"bad extension", "controls.docx", "x", common.ErrInvalidInput, "Unsupported file type: .docx. Allowed: .pdf, .csv, .xlsx, .xls, .json, .txt"},
		{"too large", "controls.txt", strings.Repeat("a", 2*1024*1024), common.ErrTooLarge, "File too large. Maximum size: 1.0MB"},
		{"empty", "controls.txt", "", common.ErrInvalidInput, "Empty file uploaded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _ := newService(t, &stubExtractor{}, 1024*1024)
			_, err := svc.Upload(context.Background(), tc.filename, bytes.NewBufferString(tc.body))
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("err = %v, want %v", err, tc.sentinel)
			}
			if got := common.Message(err); got != tc.message {
				t.Fatalf("message = %q, want %q", got, tc.message)
			}
			if len(repo.created) != 0 {
				t.Fatalf("rejected upload was persisted")
			}
		})
	}
}

func TestUploadExtractionFailureRemovesFile(t *testing.T) {
	ex := &stubExtractor{err: errors.New("bad pdf")}
	svc, repo, dir := newService(t, ex, 1024)

	_, err := svc.Upload(context.Background(), "framework.pdf", strings.NewReader("%PDF-garbage"))
	if !errors.Is(err, common.ErrInvalidInput) || common.Message(err) != "Failed to process file: bad pdf" {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("stored file not cleaned up: %v", entries)
	}
	if len(repo.created) != 0 {
		t.Fatalf("failed upload was persisted")
	}
}
