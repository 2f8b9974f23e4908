// Command mapctl drives a running control-mapper from the terminal and
// exposes it to MCP clients over stdio.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/joseph-ayodele/control-mapper/internal/client"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *client.Client, args []string) int
}

var commands = []command{
	{"health", "show server and claude CLI health", runHealth},
	{"providers", "list providers in the check catalog", runProviders},
	{"checks", "search the checks of one provider", runChecks},
	{"map", "upload a framework document and map it to providers", runMap},
	{"status", "show a batch or job status", runStatus},
	{"watch", "follow a batch until it finishes", runWatch},
	{"cancel", "cancel a job", runCancel},
	{"download", "download job artifacts or a batch archive", runDownload},
	{"mcp", "serve the mapper as MCP tools over stdio", runMCP},
}

func main() {
	_ = godotenv.Load()

	// stdout carries MCP traffic, so logs always go to stderr
	level := slog.LevelWarn
	if os.Getenv("MAPCTL_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(os.Getenv("MAPPER_URL"), nil, logger)
	name, args := os.Args[1], os.Args[2:]
	for _, cmd := range commands {
		if cmd.name == name {
			os.Exit(cmd.run(ctx, c, args))
		}
	}
	if name != "help" && name != "-h" && name != "--help" {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	}
	printHelp()
	os.Exit(1)
}

func printHelp() {
	var sb strings.Builder
	sb.WriteString("mapctl\n\nUsage:\n  mapctl <command> [options]\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&sb, "  %-10s %s\n", cmd.name, cmd.summary)
	}
	sb.WriteString("\nEnvironment:\n  MAPPER_URL   server base URL (default " + client.DefaultBaseURL + ")\n")
	fmt.Print(sb.String())
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func fail(err error) int {
	msg := err.Error()
	if isTerminal(os.Stderr) {
		msg = errorStyle.Render(msg)
	}
	fmt.Fprintln(os.Stderr, msg)
	return 1
}
