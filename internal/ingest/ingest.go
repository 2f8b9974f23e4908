package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/common"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) (stdout, stderr []byte, err error)
}

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
}

// Result is what ingestion learns about one document.
type Result struct {
	FileType  constants.FileType
	Text      string
	Preview   string
	Structure map[string]any
	Duration  time.Duration
}

type processor func(ctx context.Context, path string) (string, map[string]any, error)

type Extractor struct {
	cfg        Config
	runner     Runner
	logger     *slog.Logger
	processors map[constants.FileType]processor
}

func NewExtractor(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	e := &Extractor{cfg: cfg, runner: runner, logger: logger}
	e.processors = map[constants.FileType]processor{
		constants.FileTypePDF:  e.extractPDF,
		constants.FileTypeCSV:  extractCSV,
		constants.FileTypeXLSX: extractExcel,
		constants.FileTypeXLS:  extractExcel,
		constants.FileTypeJSON: extractJSON,
		constants.FileTypeTXT:  extractText,
	}
	return e
}

// Extract picks a processor based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	ext := filepath.Ext(path)
	ft, ok := constants.MapExtToFileType(ext)
	if !ok {
		return Result{}, common.InvalidInputf("Unsupported file type: %s", ext)
	}
	e.logger.Debug("starting extraction", "path", path, "file_type", ft)

	text, structure, err := e.processors[ft](ctx, path)
	if err != nil {
		e.logger.Error("ingest.extract.failed", "path", path, "file_type", ft, "error", err)
		return Result{FileType: ft}, fmt.Errorf("extract %s: %w", ft, err)
	}

	res := Result{
		FileType:  ft,
		Text:      text,
		Preview:   Preview(text, constants.PreviewChars),
		Structure: structure,
		Duration:  time.Since(start),
	}
	e.logger.Info("ingest.extract.ok",
		"path", path,
		"file_type", ft,
		"chars", len(text),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}
