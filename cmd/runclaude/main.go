package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/control-mapper/internal/claude"
	"github.com/joseph-ayodele/control-mapper/internal/common"
	"github.com/joseph-ayodele/control-mapper/internal/mapping"
	"github.com/joseph-ayodele/control-mapper/internal/prompt"
)

// runclaude sends a prompt file through the same invoker the server uses and
// prints the mapping object from the last run.
func main() {
	times := flag.Int("times", 1, "number of runs")
	provider := flag.String("provider", "", "normalize the output for this provider before validating")
	timeout := flag.Duration("timeout", 0, "per-run timeout (default CLAUDE_TIMEOUT)")
	flag.Parse()

	cfg := common.LoadConfig()
	// stdout is reserved for the result
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		logger.Error("usage: runclaude [-times n] [-provider aws] [-timeout 10m] <prompt-file>")
		os.Exit(2)
	}
	userPrompt, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		logger.Error("read prompt", "path", flag.Arg(0), "error", err)
		os.Exit(2)
	}

	runTimeout := cfg.Claude.Timeout
	if *timeout > 0 {
		runTimeout = *timeout
	}
	invoker := claude.NewInvoker(claude.Config{
		Binary:       cfg.Claude.Binary,
		AllowedTools: cfg.Claude.AllowedTools,
		Timeout:      runTimeout,
	}, claude.ExecRunner{Dir: cfg.Claude.WorkDir, Logger: logger}, nil, logger)
	system := prompt.NewBuilder(cfg.Storage.PromptsDir, logger).SystemPrompt()

	var last map[string]any
	failures := 0
	for i := 1; i <= max(1, *times); i++ {
		start := time.Now()
		logger.Info("pipeline.run.start", "iter", i, "prompt_bytes", len(userPrompt))

		out, err := invoker.Invoke(context.Background(), string(userPrompt), system, runTimeout)
		if err == nil {
			err = check(out, *provider, logger)
		}
		if err != nil {
			failures++
			logger.Error("pipeline.run.error", "iter", i, "err", common.Message(err))
			continue
		}
		last = out
		logger.Info("pipeline.run.ok", "iter", i, "elapsed_ms", time.Since(start).Milliseconds())
	}

	if last != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(last)
	}
	logger.Info("done", "runs", *times, "failures", failures)
	if failures > 0 {
		os.Exit(1)
	}
}

func check(out map[string]any, provider string, logger *slog.Logger) error {
	if provider != "" {
		mapping.Normalize(out, mapping.Options{Provider: provider, EnableSubgroup: true})
	}
	parsed, err := mapping.Validate(out)
	if err != nil {
		return err
	}
	s := mapping.Summarize(parsed)
	logger.Info("pipeline.run.summary",
		"controls", s.TotalControls,
		"with_checks", s.ControlsWithChecks,
		"check_mappings", s.TotalCheckMappings,
		"unmapped", s.UnmappedControls)
	return nil
}
