package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/mepfix/internal/export"
	"github.com/raphaelgruber/mepfix/internal/host"
	"github.com/raphaelgruber/mepfix/internal/keywatch"
	"github.com/raphaelgruber/mepfix/internal/metrics"
	"github.com/raphaelgruber/mepfix/internal/service"
)

var (
	runOutput           string
	runScope            string
	runStrict           bool
	runIFCVersion       string
	runSpaceBoundaries  int
	runPhase            string
	runSiteBasis        string
	runNoBaseQuantities bool
	runWatchKeys        bool
)

var runCmd = &cobra.Command{
	Use:   "run [DIR]",
	Short: "Remediate, save and export every model document in a directory",
	Long: `Run the batch over DIR (or MEPFIX_INPUT_DIR).

Each document is opened, scanned for overloaded equipment, remediated,
saved and exported to IFC, then closed. Press q or Esc to stop after the
current file; SIGINT and SIGTERM do the same.

Examples:
  mepfix run ./models
  mepfix run ./models --output ./ifc --ifc-version IFC4
  mepfix run ./models --scope category --strict-advisories
  mepfix run --config mepfix.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "export directory (default <dir>/ifc)")
	runCmd.Flags().StringVar(&runScope, "scope", "mismatched", "equipment to remediate: mismatched or category")
	runCmd.Flags().BoolVar(&runStrict, "strict-advisories", false, "roll back on any host advisory instead of dismissing warnings")
	runCmd.Flags().StringVar(&runIFCVersion, "ifc-version", string(export.VersionIFC2x3CV2), "IFC file version")
	runCmd.Flags().IntVar(&runSpaceBoundaries, "space-boundaries", 0, "space boundary level (0, 1 or 2)")
	runCmd.Flags().StringVar(&runPhase, "phase", "last", "phase to export: last, first or a 0-based index")
	runCmd.Flags().StringVar(&runSiteBasis, "site-basis", string(export.SiteShared), "site placement: shared, survey, project or internal")
	runCmd.Flags().BoolVar(&runNoBaseQuantities, "no-base-quantities", false, "omit base quantities from the export")
	runCmd.Flags().BoolVar(&runWatchKeys, "watch-keys", true, "stop on q/Esc when stdin is a terminal")
}

func runBatch(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd)
	interactive := cfg.WatchKeys && term.IsTerminal(int(os.Stdin.Fd()))
	quietConsole = interactive
	if err := prepare(cmd, args); err != nil {
		return err
	}

	opts, err := cfg.BatchOptions()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	theme := defaultTheme
	out := cmd.OutOrStdout()

	var monitor *keywatch.Monitor
	if interactive {
		monitor = keywatch.Start(cancel, logger, tea.WithOutput(out))
		defer monitor.Stop()
		opts.OnStart = monitor.Started
		opts.OnFile = func(o service.FileOutcome) {
			monitor.FileDone(keywatch.FileDone{
				Name:       filepath.Base(o.File),
				Mismatches: len(o.Mismatches),
				Failed:     o.Failed(),
			})
		}
	} else {
		opts.OnFile = func(o service.FileOutcome) {
			printFileLine(out, theme, o)
		}
	}

	h := host.New(export.NewStepWriter(), logger)
	svc := service.NewBatchService(service.FileHost{Host: h}, metrics.NewCollector(), logger)
	result, err := svc.Run(ctx, opts)

	if monitor != nil {
		// The terminal is restored before anything else is printed.
		if err := monitor.Stop(); err != nil {
			logger.Warn("progress display failed", "error", err)
		}
	}
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	if monitor != nil {
		for _, o := range result.Files {
			if o.Failed() {
				printFileLine(out, theme, o)
			}
		}
	}

	path, err := service.WriteReport(opts.OutputDir, result)
	if err != nil {
		logger.Error("failed to write run report", "error", err)
	}

	printSummary(out, theme, result, svc.Metrics().Snapshot())
	if path != "" {
		fmt.Fprintln(out, theme.hintStyle().Render("Report: "+path))
	}
	return nil
}

// applyRunFlags copies explicitly set run flags into cfg.
func applyRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputDir = runOutput
	}
	if flags.Changed("scope") {
		cfg.Scope = runScope
	}
	if flags.Changed("strict-advisories") {
		cfg.StrictAdvisories = runStrict
	}
	if flags.Changed("ifc-version") {
		cfg.Export.Version = export.Version(runIFCVersion)
	}
	if flags.Changed("space-boundaries") {
		cfg.Export.SpaceBoundaries = runSpaceBoundaries
	}
	if flags.Changed("phase") {
		cfg.Export.Phase = runPhase
	}
	if flags.Changed("site-basis") {
		cfg.Export.SiteBasis = export.SiteBasis(runSiteBasis)
	}
	if flags.Changed("no-base-quantities") {
		cfg.Export.BaseQuantities = !runNoBaseQuantities
	}
	if flags.Changed("watch-keys") {
		cfg.WatchKeys = runWatchKeys
	}
}
