package run

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/argo-profile-etl/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

const clearScreen = "\033[H\033[2J"

// detailWidth caps the detail column, counted in display cells.
const detailWidth = 60

var (
	successLabel = color.New(color.FgGreen).SprintFunc()
	warningLabel = color.New(color.FgYellow).SprintFunc()
	failureLabel = color.New(color.FgRed).SprintFunc()
)

// Render writes a snapshot as a totals table followed by the recent
// successes, warnings, and failures. Error text is trimmed to keep the view
// compact; the run log has the full detail.
func Render(w io.Writer, s Snapshot) error {
	var b strings.Builder

	pct := 0.0
	if s.Total > 0 {
		pct = float64(s.Done) * 100 / float64(s.Total)
	}
	fmt.Fprintf(&b, "Run %s  %d/%d files (%.1f%%)  elapsed %s\n",
		s.RunID, s.Done, s.Total, pct, s.Elapsed.Round(time.Second))

	totals := table.NewWriter()
	totals.SetStyle(table.StyleRounded)
	totals.AppendHeader(table.Row{"Outcome", "Files"})
	totals.AppendRow(table.Row{successLabel("success"), humanize.Comma(int64(s.Success))})
	totals.AppendRow(table.Row{warningLabel("warning"), humanize.Comma(int64(s.Warning))})
	totals.AppendRow(table.Row{failureLabel("failure"), humanize.Comma(int64(s.Failure))})
	totals.AppendFooter(table.Row{"rows written", humanize.Comma(s.Rows)})
	totals.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignRight},
	})
	b.WriteString(totals.Render())
	b.WriteString("\n")

	recent := func(title string, label func(a ...interface{}) string, entries []Entry) {
		if len(entries) == 0 {
			return
		}
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.SetTitle(label(title))
		tw.AppendHeader(table.Row{"#", "File", "Rows", "Detail"})
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			tw.AppendRow(table.Row{e.Seq, e.Source, humanize.Comma(int64(e.Rows)), text.Snip(e.Detail, detailWidth, "...")})
		}
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
		})
		b.WriteString(tw.Render())
		b.WriteString("\n")
	}
	recent("Recent successes", successLabel, s.RecentSuccess)
	recent("Recent warnings", warningLabel, s.RecentWarning)
	recent("Recent failures", failureLabel, s.RecentFailure)

	if s.LogPath != "" {
		fmt.Fprintf(&b, "Log: %s\n", s.LogPath)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Reporter redraws the live view of a run on an interval. On a terminal the
// screen is cleared before each redraw; otherwise a one-line progress update
// is printed instead so piped output stays readable.
type Reporter struct {
	state    *State
	out      io.Writer
	interval time.Duration
	tty      bool
}

// NewReporter creates a Reporter writing to out.
func NewReporter(state *State, out io.Writer, interval time.Duration) *Reporter {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Reporter{state: state, out: out, interval: interval, tty: tty}
}

// Run redraws until ctx is cancelled, then draws the final view once.
func (r *Reporter) Run(ctx context.Context) {
	ticker := domain.Clock().NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Final()
			return
		case <-ticker.Chan():
			r.draw()
		}
	}
}

// Final renders the full view without clearing the screen.
func (r *Reporter) Final() {
	_ = Render(r.out, r.state.Snapshot())
}

func (r *Reporter) draw() {
	snap := r.state.Snapshot()
	if !r.tty {
		fmt.Fprintf(r.out, "progress: %d/%d done, %d ok, %d warn, %d failed\n",
			snap.Done, snap.Total, snap.Success, snap.Warning, snap.Failure)
		return
	}
	_, _ = io.WriteString(r.out, clearScreen)
	_ = Render(r.out, snap)
}
