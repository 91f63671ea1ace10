// Package cli provides the command-line interface for mepfix.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/mepfix/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configFile string
	logFile    string
	extension  string
	recursive  bool
	category   string

	// Global config and logger
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error

	// quietConsole limits stderr logging to warnings while the progress
	// display owns the terminal.
	quietConsole bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mepfix",
	Short: "Batch-repair MEP connector graphs and export IFC",
	Long: `Mepfix walks a directory of building model documents, finds electrical
equipment whose connected load exceeds its capacity, disconnects the
subsystems serving it, then saves each document and exports it to IFC.

Every file runs to completion on its own; failures are written to the run
log and never stop the batch.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()
		if configFile != "" {
			if err := config.LoadFile(configFile, &cfg); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides MEPFIX_* environment)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "run log (default <dir>/mepfix.log)")
	rootCmd.PersistentFlags().StringVar(&extension, "ext", ".mep", "model document extension")
	rootCmd.PersistentFlags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	rootCmd.PersistentFlags().StringVar(&category, "category", "electrical_equipment", "monitored equipment category")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(reportCmd)
}

// prepare applies the directory argument and explicit flags over the loaded
// config, validates it and opens the run logger.
func prepare(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.InputDir = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("ext") {
		cfg.Extension = extension
	}
	if flags.Changed("recursive") {
		cfg.Recursive = recursive
	}
	if flags.Changed("category") {
		cfg.Category = category
	}
	if verbose {
		cfg.LogLevel = "DEBUG"
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	consoleLevel := cfg.Level()
	if quietConsole {
		consoleLevel = max(consoleLevel, slog.LevelWarn)
	}
	logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.Level(), consoleLevel)
	slog.SetDefault(logger)
	return nil
}
