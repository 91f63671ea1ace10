package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/mepfix/internal/metrics"
	"github.com/raphaelgruber/mepfix/internal/service"
)

// Theme holds the color scheme for run output.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// printFileLine prints one line per finished document.
func printFileLine(w io.Writer, t Theme, o service.FileOutcome) {
	name := filepath.Base(o.File)
	took := o.Duration.Round(time.Millisecond)
	switch {
	case o.Failed():
		fmt.Fprintf(w, "%s %s %s\n", t.errorStyle().Render("✗"), name, t.hintStyle().Render(took.String()))
		for _, e := range o.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	case len(o.Mismatches) > 0:
		fmt.Fprintf(w, "%s %s: %d mismatch(es) remediated %s\n",
			t.statusStyle().Render("●"), name, len(o.Mismatches), t.hintStyle().Render(took.String()))
	default:
		fmt.Fprintf(w, "%s %s %s\n", t.completedStyle().Render("✓"), name, t.hintStyle().Render(took.String()))
	}
}

// printSummary prints the batch counters and stage timings.
func printSummary(w io.Writer, t Theme, r *service.BatchResult, stats metrics.Snapshot) {
	fmt.Fprintln(w)
	switch r.Status {
	case service.RunStatusCompleted:
		fmt.Fprintln(w, t.completedStyle().Render("✓ Completed"))
	case service.RunStatusAborted:
		fmt.Fprintln(w, t.statusStyle().Render(fmt.Sprintf("■ Stopped, %d file(s) not started", r.Skipped)))
	default:
		fmt.Fprintln(w, t.errorStyle().Render(fmt.Sprintf("✗ %s", r.Status)))
	}

	fmt.Fprintf(w, "\n  Run:         %s\n", r.RunID)
	fmt.Fprintf(w, "  Processed:   %d/%d\n", r.Processed, r.Total)
	fmt.Fprintf(w, "  Mismatched:  %d\n", r.Mismatched)
	fmt.Fprintf(w, "  Remediated:  %d\n", r.Remediated)
	fmt.Fprintf(w, "  Saved:       %d\n", r.Saved)
	fmt.Fprintf(w, "  Exported:    %d\n", r.Exported)
	if r.Errored > 0 {
		fmt.Fprintln(w, t.errorStyle().Render(fmt.Sprintf("  Errored:     %d", r.Errored)))
	}

	fmt.Fprintf(w, "\nStage timings (%s):\n", stats.Elapsed.Round(time.Millisecond))
	for _, st := range stats.Stages {
		printStageStats(w, st)
	}
	if f := stats.Files; f.Count > 0 {
		fmt.Fprintf(w, "  Documents: %d, avg %s, slowest %s (%s)\n",
			f.Count, (f.Total / time.Duration(f.Count)).Round(time.Millisecond),
			filepath.Base(f.Slowest), f.SlowestTime.Round(time.Millisecond))
	}
}

// printStageStats displays timing statistics for one pipeline stage.
func printStageStats(w io.Writer, st metrics.StageStats) {
	fmt.Fprintf(w, "  %-10s calls %d", st.Stage+":", st.Count)
	if st.Failures > 0 {
		fmt.Fprintf(w, " (%d failed)", st.Failures)
	}
	fmt.Fprintf(w, ", total %dms, avg %.1fms, min %dms, max %dms\n",
		st.Total.Milliseconds(), float64(st.Avg().Microseconds())/1000,
		st.Min.Milliseconds(), st.Max.Milliseconds())
}
