package claude

import (
	"context"
	"strings"
	"time"
)

// HealthCheck reports whether the CLI answers `--version`. It never returns an error.
func (i *Invoker) HealthCheck(ctx context.Context) bool {
	waitCtx, cancel := context.WithTimeout(ctx, healthTimeout+5*time.Second)
	defer cancel()

	v, err := i.pool.Submit(waitCtx, func(context.Context) (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthTimeout)
		defer cancel()
		stdout, _, err := i.runner.Run(runCtx, nil, i.cfg.Binary, "--version")
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(string(stdout)), nil
	})
	if err != nil {
		i.logger.Warn("claude.health.failed", "error", err)
		return false
	}
	i.logger.Debug("claude.health.ok", "version", v)
	return true
}
