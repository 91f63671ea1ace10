package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/mepfix/internal/service"
)

var reportVerbose bool

var reportCmd = &cobra.Command{
	Use:   "report FILE",
	Short: "Show a saved run report",
	Long: `Print the run report written at the end of 'mepfix run'.

Examples:
  mepfix report ./models/ifc/mepfix-run-1a2b3c4d.yaml
  mepfix report ./models/ifc/mepfix-run-1a2b3c4d.yaml --files`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := service.ReadReport(args[0])
		if err != nil {
			return err
		}
		showReport(cmd.OutOrStdout(), r, reportVerbose)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportVerbose, "files", false, "list every file, not only failed ones")
}

func showReport(w io.Writer, r *service.BatchResult, allFiles bool) {
	fmt.Fprintf(w, "Run: %s\n", r.RunID)
	fmt.Fprintf(w, "  Status: %s\n", r.Status)
	fmt.Fprintf(w, "  Input: %s\n", r.InputDir)
	fmt.Fprintf(w, "  Output: %s\n", r.OutputDir)
	fmt.Fprintf(w, "  Started: %s\n", r.StartedAt.Format(time.RFC3339))
	if r.CompletedAt != nil {
		fmt.Fprintf(w, "  Completed: %s\n", r.CompletedAt.Format(time.RFC3339))
		fmt.Fprintf(w, "  Duration: %s\n", r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", r.Error)
	}

	fmt.Fprintln(w, "\nResult:")
	fmt.Fprintf(w, "  Files processed: %d/%d\n", r.Processed, r.Total)
	if r.Skipped > 0 {
		fmt.Fprintf(w, "  Files skipped: %d\n", r.Skipped)
	}
	fmt.Fprintf(w, "  Mismatched: %d\n", r.Mismatched)
	fmt.Fprintf(w, "  Remediated: %d\n", r.Remediated)
	fmt.Fprintf(w, "  Saved: %d\n", r.Saved)
	fmt.Fprintf(w, "  Exported: %d\n", r.Exported)
	fmt.Fprintf(w, "  Errored: %d\n", r.Errored)

	for _, f := range r.Files {
		if !allFiles && !f.Failed() {
			continue
		}
		fmt.Fprintf(w, "\n  %s [%s] %s\n", f.File, f.State, f.Duration.Round(time.Millisecond))
		for _, m := range f.Mismatches {
			fmt.Fprintf(w, "    mismatch: %s\n", m)
		}
		if rep := f.Remediation; rep != nil {
			fmt.Fprintf(w, "    remediation: %d severed, %d deleted, %d retained\n", rep.Severed, rep.Deleted, rep.Retained)
		}
		if f.ExportPath != "" {
			fmt.Fprintf(w, "    export: %s\n", f.ExportPath)
		}
		for _, e := range f.Errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}
