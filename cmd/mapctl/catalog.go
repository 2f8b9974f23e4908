package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/joseph-ayodele/control-mapper/internal/catalog"
	"github.com/joseph-ayodele/control-mapper/internal/client"
)

func runHealth(ctx context.Context, c *client.Client, _ []string) int {
	h, err := c.Health(ctx)
	if err != nil {
		return fail(err)
	}
	claude := "unavailable"
	if h.ClaudeAvailable {
		claude = "available"
	}
	fmt.Printf("%s %s\n%s %s\n",
		labelStyle.Render("server:"), h.Status,
		labelStyle.Render("claude:"), claude)
	if !h.ClaudeAvailable {
		return 1
	}
	return 0
}

func runProviders(ctx context.Context, c *client.Client, args []string) int {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, "usage: mapctl providers [-json]")
		return 2
	}

	ps, err := c.ListProviders(ctx)
	if err != nil {
		return fail(err)
	}
	if *jsonOut || !isTerminal(os.Stdout) {
		return printJSON(map[string]any{"providers": ps})
	}

	rows := make([][]string, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, []string{p.Name, p.DisplayName, strconv.Itoa(p.CheckCount)})
	}
	fmt.Println(titleStyle.Render("Providers"))
	fmt.Println(renderTable([]string{"NAME", "DISPLAY", "CHECKS"}, rows))
	return 0
}

func runChecks(ctx context.Context, c *client.Client, args []string) int {
	fs := flag.NewFlagSet("checks", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	search := fs.String("search", "", "substring of check id, title or description")
	service := fs.String("service", "", "exact service name")
	limit := fs.Int("limit", catalog.DefaultLimit, "page size (1-1000)")
	offset := fs.Int("offset", 0, "page offset")
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mapctl checks [-search s] [-service s] [-limit n] [-offset n] [-json] <provider>")
		return 2
	}

	page, err := c.SearchChecks(ctx, fs.Arg(0), catalog.Filter{
		Search:  *search,
		Service: *service,
		Limit:   *limit,
		Offset:  *offset,
	})
	if err != nil {
		return fail(err)
	}
	if *jsonOut || !isTerminal(os.Stdout) {
		return printJSON(page)
	}

	rows := make([][]string, 0, len(page.Checks))
	for _, ch := range page.Checks {
		rows = append(rows, []string{ch.CheckID, ch.ServiceName, ch.Severity, ch.CheckTitle})
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s checks (%d-%d of %d)",
		page.Provider, *offset+min(1, len(rows)), *offset+len(rows), page.Total)))
	fmt.Println(renderTable([]string{"CHECK", "SERVICE", "SEVERITY", "TITLE"}, rows))
	return 0
}

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCell
			}
			return cellStyle
		})
	return t.String()
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(err)
	}
	return 0
}
