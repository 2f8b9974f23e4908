package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/app"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/export"
	"github.com/joseph-ayodele/control-mapper/internal/services/configure"
	mapsvc "github.com/joseph-ayodele/control-mapper/internal/services/mapping"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		scratch    = flag.Bool("scratch", false, "use a throwaway SQLite database")
		file       = flag.String("file", "", "framework document to map (required)")
		framework  = flag.String("framework", "", "short framework name, e.g. CIS (required)")
		fullName   = flag.String("full-name", "", "full framework name")
		version    = flag.String("version", "", "framework version")
		providers  = flag.String("providers", "", "comma-separated providers (required)")
		noSubgroup = flag.Bool("no-subgroup", false, "omit SubGroup from requirement attributes")
		out        = flag.String("out", "", "output ZIP path (optional, defaults next to the document)")
		poll       = flag.Duration("poll", time.Second, "status poll interval")
	)
	flag.Parse()

	if *file == "" || *framework == "" || *providers == "" {
		printError("Error: --file, --framework and --providers are required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*file), export.Sanitize(*framework)+"_all_providers.zip")
	}

	cfg := common.LoadConfig()
	logger := common.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	if *scratch {
		dir, err := os.MkdirTemp("", "map-batch-*")
		if err != nil {
			logger.Error("failed to create scratch directory", "error", err)
			os.Exit(1)
		}
		defer os.RemoveAll(dir)
		cfg.Database.DSN = filepath.Join(dir, "jobs.db")
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	code := run(ctx, a, *file, *out, *poll, configure.Request{
		FrameworkName:     *framework,
		FrameworkFullName: optional(*fullName),
		FrameworkVersion:  optional(*version),
		Providers:         strings.Split(*providers, ","),
		EnableSubgroup:    boolPtr(!*noSubgroup),
	}, logger)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	a.Close(closeCtx)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, a *app.App, file, out string, poll time.Duration, req configure.Request, logger *slog.Logger) int {
	f, err := os.Open(file)
	if err != nil {
		logger.Error("failed to open document", "error", err)
		return 1
	}
	up, err := a.Uploads.Upload(ctx, filepath.Base(file), f)
	_ = f.Close()
	if err != nil {
		logger.Error("failed to ingest document", "error", common.Message(err))
		return 1
	}
	logger.Info("document ingested", "upload_id", up.UploadID, "file_type", up.FileType, "bytes", up.SizeBytes)

	req.UploadID = up.UploadID.String()
	cfg, err := a.Configure.Configure(ctx, req)
	if err != nil {
		logger.Error("failed to configure mapping", "error", common.Message(err))
		return 1
	}

	started, err := a.Mapping.Start(ctx, mapsvc.StartRequest{
		UploadID:        up.UploadID.String(),
		ConfigurationID: cfg.ConfigurationID.String(),
	})
	if err != nil {
		logger.Error("failed to start mapping", "error", common.Message(err))
		return 1
	}
	logger.Info("batch started", "batch_id", started.BatchID, "jobs", len(started.Jobs), "total_checks", cfg.TotalChecks)

	view, err := waitBatch(ctx, a.Mapping, started.BatchID.String(), poll)
	if err != nil {
		logger.Error("batch did not finish", "batch_id", started.BatchID, "error", err)
		return 1
	}
	for _, j := range view.Jobs {
		attrs := []any{"provider", j.Provider, "status", j.Status}
		if j.Summary != nil {
			attrs = append(attrs, "controls", j.Summary.TotalControls, "check_mappings", j.Summary.TotalCheckMappings)
		}
		if j.ErrorMessage != nil {
			attrs = append(attrs, "error", *j.ErrorMessage)
		}
		logger.Info("job finished", attrs...)
	}

	if view.Status != constants.BatchStatusFailed {
		if err := writeArchive(ctx, a.Mapping, started.BatchID.String(), out); err != nil {
			logger.Error("failed to write archive", "output", out, "error", common.Message(err))
			return 1
		}
		logger.Info("archive written", "output", out)
	}

	logger.Info("batch processing complete", "batch_id", started.BatchID, "status", view.Status)
	if view.Status != constants.BatchStatusCompleted {
		return 1
	}
	return 0
}

func waitBatch(ctx context.Context, svc *mapsvc.Service, batchID string, poll time.Duration) (*mapsvc.BatchView, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	last := -1
	for {
		v, err := svc.BatchStatus(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if v.Status.IsTerminal() {
			return v, nil
		}
		if v.OverallProgress != last {
			last = v.OverallProgress
			msg := ""
			if v.CurrentMessage != nil {
				msg = *v.CurrentMessage
			}
			slog.Info("batch progress", "status", v.Status, "overall", v.OverallProgress, "message", msg)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func writeArchive(ctx context.Context, svc *mapsvc.Service, batchID, path string) error {
	archive, err := svc.BatchZip(ctx, batchID)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := export.WriteBatchZip(f, archive.Entries); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func boolPtr(b bool) *bool { return &b }
