package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/control-mapper/internal/claude"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/ingest"
)

// extracttext runs document ingestion on one file and prints the text the
// mapper would see.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "extracttext <document-path>")
		os.Exit(2)
	}
	path := os.Args[1]
	cfg := common.LoadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ex := ingest.NewExtractor(ingest.Config{Pdftotext: cfg.Ingest.Pdftotext}, claude.ExecRunner{Logger: logger}, logger)

	start := time.Now()
	res, err := ex.Extract(ctx, path)
	dur := time.Since(start)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", common.Message(err), "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"file_type", res.FileType,
		"bytes", len(res.Text),
		"structure", res.Structure,
		"duration_ms", dur.Milliseconds(),
	)
	fmt.Println(res.Text)
}
