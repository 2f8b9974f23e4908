package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joseph-ayodele/control-mapper/constants"
	"github.com/joseph-ayodele/control-mapper/internal/client"
	mapsvc "github.com/joseph-ayodele/control-mapper/internal/services/mapping"
)

const defaultPollInterval = 2 * time.Second

func runWatch(ctx context.Context, c *client.Client, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	interval := fs.Duration("interval", defaultPollInterval, "poll interval")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: mapctl watch [-interval 2s] <batch-id>")
		return 2
	}
	return watchBatch(ctx, c, fs.Arg(0), *interval)
}

// watchBatch polls until the batch is terminal. The exit code is 0 only when
// every job completed.
func watchBatch(ctx context.Context, c *client.Client, batchID string, interval time.Duration) int {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if !isTerminal(os.Stdout) {
		return watchPlain(ctx, c, batchID, interval)
	}

	m := newWatchModel(ctx, c, batchID, interval)
	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return fail(err)
	}
	wm := final.(watchModel)
	if wm.err != nil {
		return fail(wm.err)
	}
	return exitCode(wm.view)
}

func exitCode(v *mapsvc.BatchView) int {
	if v != nil && v.Status == constants.BatchStatusCompleted {
		return 0
	}
	return 1
}

// watchPlain prints one line per change for logs and pipes.
func watchPlain(ctx context.Context, c *client.Client, batchID string, interval time.Duration) int {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	for {
		v, err := c.BatchStatus(ctx, batchID)
		if err != nil {
			return fail(err)
		}
		state := fmt.Sprintf("%s %d%%", v.Status, v.OverallProgress)
		if v.CurrentMessage != nil {
			state += " " + *v.CurrentMessage
		}
		if state != last {
			fmt.Println(time.Now().Format(time.TimeOnly), state)
			last = state
		}
		if v.Status.IsTerminal() {
			for _, j := range v.Jobs {
				fmt.Printf("  %-8s %-9s %s\n", j.Provider, j.Status, jobDetail(j))
			}
			return exitCode(v)
		}
		select {
		case <-ctx.Done():
			return 1
		case <-ticker.C:
		}
	}
}

type statusMsg struct {
	view *mapsvc.BatchView
	err  error
}

type tickMsg struct{}

type watchModel struct {
	ctx      context.Context
	client   *client.Client
	batchID  string
	interval time.Duration
	bar      progress.Model
	view     *mapsvc.BatchView
	err      error
}

func newWatchModel(ctx context.Context, c *client.Client, batchID string, interval time.Duration) watchModel {
	return watchModel{
		ctx:      ctx,
		client:   c,
		batchID:  batchID,
		interval: interval,
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
	}
}

func (m watchModel) fetch() tea.Msg {
	v, err := m.client.BatchStatus(m.ctx, m.batchID)
	return statusMsg{view: v, err: err}
}

func (m watchModel) Init() tea.Cmd { return m.fetch }

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.view = msg.view
		if m.view.Status.IsTerminal() {
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
	case tickMsg:
		return m, m.fetch
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.view == nil {
		return labelStyle.Render("waiting for batch "+m.batchID+"...") + "\n"
	}
	return renderBatch(m.view, &m.bar) + "\n" + labelStyle.Render("q to stop watching") + "\n"
}

// renderBatch draws the batch with one bar per job. A nil bar prints
// percentages only.
func renderBatch(v *mapsvc.BatchView, bar *progress.Model) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s  %s\n",
		titleStyle.Render("Batch "+v.BatchID.String()),
		batchStatusStyle(v.Status).Render(string(v.Status)),
		percent(bar, v.OverallProgress))
	if v.CurrentMessage != nil {
		sb.WriteString(labelStyle.Render(*v.CurrentMessage) + "\n")
	}
	sb.WriteString("\n")
	for _, j := range v.Jobs {
		fmt.Fprintf(&sb, "  %-8s %s %s  %s\n",
			j.Provider,
			percent(bar, j.ProgressPercentage),
			jobStatusStyle(j.Status).Render(fmt.Sprintf("%-9s", j.Status)),
			jobDetail(j))
	}
	return sb.String()
}

func percent(bar *progress.Model, pct int) string {
	if bar == nil {
		return fmt.Sprintf("%3d%%", pct)
	}
	return bar.ViewAs(float64(pct) / 100)
}

func jobDetail(j mapsvc.BatchJobStatus) string {
	switch {
	case j.ErrorMessage != nil:
		return *j.ErrorMessage
	case j.Summary != nil:
		return fmt.Sprintf("%d controls, %d mapped, %d checks",
			j.Summary.TotalControls, j.Summary.ControlsWithChecks, j.Summary.TotalCheckMappings)
	case j.ProgressMessage != nil:
		return *j.ProgressMessage
	}
	return ""
}
