package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	unsafeChars  = regexp.MustCompile(`[^\p{L}\p{N}_-]`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// Service writes mapping results into the output directory.
type Service struct {
	outputDir string
	logger    *slog.Logger
}

func NewService(outputDir string, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &Service{outputDir: outputDir, logger: logger}, nil
}

func (s *Service) OutputDir() string { return s.outputDir }

// Sanitize makes name safe for a file name.
func Sanitize(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscoreRe.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// FileName is <framework>_<provider>.<ext> when both are known, else <jobID>.<ext>.
// Two jobs for the same framework and provider share a name; the later run wins.
func FileName(jobID uuid.UUID, ext, framework, provider string) string {
	if framework != "" && provider != "" {
		return fmt.Sprintf("%s_%s.%s", Sanitize(framework), Sanitize(provider), ext)
	}
	return fmt.Sprintf("%s.%s", jobID, ext)
}

// DownloadName is the attachment name offered to clients.
func DownloadName(framework, provider, ext string) string {
	if framework == "" {
		framework = "mapping"
	}
	name := fmt.Sprintf("%s_%s.%s", framework, provider, ext)
	return strings.NewReplacer(" ", "_", "/", "_").Replace(name)
}

// ExportJSON writes result as indented JSON and returns the file path.
func (s *Service) ExportJSON(jobID uuid.UUID, result map[string]any, framework, provider string) (string, error) {
	start := time.Now()
	path := filepath.Join(s.outputDir, FileName(jobID, "json", framework, provider))

	data, err := MarshalResult(result)
	if err != nil {
		return "", fmt.Errorf("encode mapping json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.logger.Error("export.json.failed", "job_id", jobID, "path", path, "error", err)
		return "", fmt.Errorf("write mapping json: %w", err)
	}
	s.logger.Info("export.json.ok",
		"job_id", jobID,
		"path", path,
		"bytes", len(data),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}
