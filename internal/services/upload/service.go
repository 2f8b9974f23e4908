package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/entity"
	"github.com/joseph-ayodele/control-mapper/internal/ingest"
	"github.com/joseph-ayodele/control-mapper/internal/repository"
)

// Extractor turns a stored document into text.
type Extractor interface {
	Extract(ctx context.Context, path string) (ingest.Result, error)
}

type Config struct {
	Dir     string
	MaxSize int64
}

// Service stores uploaded framework documents and their extracted text.
type Service struct {
	cfg       Config
	uploads   repository.UploadRepository
	extractor Extractor
	logger    *slog.Logger
}

func NewService(cfg Config, uploads repository.UploadRepository, extractor Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = constants.MaxUploadSizeDefault
	}
	return &Service{cfg: cfg, uploads: uploads, extractor: extractor, logger: logger}
}

// Result is returned to the client after a successful upload.
type Result struct {
	UploadID  uuid.UUID `json:"upload_id"`
	Filename  string    `json:"filename"`
	FileType  string    `json:"file_type"`
	SizeBytes int64     `json:"size_bytes"`
	Preview   string    `json:"preview"`
}

// Upload validates the document, writes it under the upload directory,
// extracts its text and records it.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*Result, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, common.InvalidInput("No filename provided")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := constants.MapExtToFileType(ext); !ok || ext == "" {
		return nil, common.InvalidInputf("Unsupported file type: %s. Allowed: %s",
			ext, strings.Join(constants.AllowedExtensionList(), ", "))
	}

	content, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxSize+1))
	if err != nil {
		return nil, common.NewAppError("READ_ERROR", "Failed to read upload", err)
	}
	if int64(len(content)) > s.cfg.MaxSize {
		return nil, common.NewAppError("TOO_LARGE",
			fmt.Sprintf("File too large. Maximum size: %.1fMB", float64(s.cfg.MaxSize)/1024/1024), common.ErrTooLarge)
	}
	if len(content) == 0 {
		return nil, common.InvalidInput("Empty file uploaded")
	}

	id := uuid.New()
	path := filepath.Join(s.cfg.Dir, id.String()+ext)
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return nil, common.NewAppError("STORAGE_ERROR", "Failed to store upload", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		s.logger.Error("upload write failed", "upload_id", id, "path", path, "error", err)
		return nil, common.NewAppError("STORAGE_ERROR", "Failed to store upload", err)
	}

	res, err := s.extractor.Extract(ctx, path)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("upload cleanup failed", "upload_id", id, "path", path, "error", rmErr)
		}
		return nil, common.InvalidInputf("Failed to process file: %s", common.Message(err))
	}

	text, preview := res.Text, res.Preview
	u := &entity.Upload{
		ID:            id,
		Filename:      filename,
		FileType:      string(res.FileType),
		FilePath:      path,
		FileSize:      int64(len(content)),
		ExtractedText: &text,
		Preview:       &preview,
		Structure:     res.Structure,
	}
	if err := s.uploads.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("upload stored", "upload_id", id, "filename", filename, "file_type", u.FileType, "size_bytes", u.FileSize)
	return &Result{
		UploadID:  id,
		Filename:  filename,
		FileType:  u.FileType,
		SizeBytes: u.FileSize,
		Preview:   preview,
	}, nil
}
