package claude

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/joseph-ayodele/control-mapper/internal/async"
)

const (
	DefaultTimeout = 600 * time.Second
	// dispatchGrace bounds how long a caller waits on the pool beyond the tool timeout.
	dispatchGrace = 30 * time.Second
	healthTimeout = 10 * time.Second
)

type Config struct {
	Binary       string
	AllowedTools string
	Timeout      time.Duration
}

// Invoker runs the claude CLI in non-interactive mode and returns the mapping
// object found in its output.
type Invoker struct {
	cfg    Config
	runner Runner
	pool   *async.Pool
	logger *slog.Logger
}

func NewInvoker(cfg Config, runner Runner, pool *async.Pool, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "claude"
	}
	if cfg.AllowedTools == "" {
		cfg.AllowedTools = "Read,Glob"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if pool == nil {
		pool = async.NewPool(logger)
	}
	return &Invoker{cfg: cfg, runner: runner, pool: pool, logger: logger}
}

type execOutcome struct {
	stdout   []byte
	stderr   []byte
	err      error
	timedOut bool
}

// Invoke sends prompt on stdin and extracts the JSON result. A zero timeout
// uses the configured default.
func (i *Invoker) Invoke(ctx context.Context, prompt, systemPrompt string, timeout time.Duration) (map[string]any, error) {
	if timeout <= 0 {
		timeout = i.cfg.Timeout
	}
	args := i.buildArgs(systemPrompt)
	start := time.Now()
	i.logger.Info("claude.invoke.start",
		"timeout_s", int(timeout.Seconds()),
		"prompt_chars", len(prompt),
		"has_system_prompt", systemPrompt != "",
	)

	waitCtx, cancelWait := context.WithTimeout(ctx, timeout+dispatchGrace)
	defer cancelWait()

	v, err := i.pool.Submit(waitCtx, func(context.Context) (any, error) {
		// The subprocess is bounded by its own deadline only; a cancelled
		// caller stops waiting but does not kill it.
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		stdout, stderr, err := i.runner.Run(runCtx, []byte(prompt), i.cfg.Binary, args...)
		return &execOutcome{
			stdout:   stdout,
			stderr:   stderr,
			err:      err,
			timedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
		}, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = timeoutError(timeout)
		}
		i.logger.Error("claude.invoke.failed", "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, err
	}

	out := v.(*execOutcome)
	result, err := i.interpret(out, timeout)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		i.logger.Error("claude.invoke.failed", "elapsed_ms", elapsed, "error", err)
		return nil, err
	}
	i.logger.Info("claude.invoke.ok", "elapsed_ms", elapsed, "stdout_bytes", len(out.stdout))
	return result, nil
}

func (i *Invoker) interpret(out *execOutcome, timeout time.Duration) (map[string]any, error) {
	if out.timedOut {
		return nil, timeoutError(timeout)
	}
	if out.err != nil {
		if isNotFound(out.err) {
			return nil, executionError("Claude Code CLI not found. Please ensure 'claude' is installed and in PATH.")
		}
		var exitErr *exec.ExitError
		if errors.As(out.err, &exitErr) {
			return nil, executionError("Claude Code failed: " + failureDetail(out.stderr, out.stdout))
		}
		return nil, executionError(fmt.Sprintf("Failed to execute Claude Code: %v", out.err))
	}
	return Extract(string(out.stdout))
}

func (i *Invoker) buildArgs(systemPrompt string) []string {
	args := []string{
		"--print",
		"--output-format", "json",
		"--allowedTools", i.cfg.AllowedTools,
	}
	if systemPrompt != "" {
		args = append(args, "--system-prompt", systemPrompt)
	}
	return args
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

func failureDetail(stderr, stdout []byte) string {
	if s := strings.TrimSpace(string(stderr)); s != "" {
		return s
	}
	if s := strings.TrimSpace(string(stdout)); s != "" {
		return preview(s, previewChars)
	}
	return "Unknown error"
}
