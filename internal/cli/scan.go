package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/mepfix/internal/detect"
	"github.com/raphaelgruber/mepfix/internal/host"
	"github.com/raphaelgruber/mepfix/internal/models"
	"github.com/raphaelgruber/mepfix/internal/service"
)

var scanCmd = &cobra.Command{
	Use:   "scan [DIR]",
	Short: "List overloaded equipment without changing any document",
	Long: `Open each model document in DIR, print the equipment whose connected
load exceeds its capacity, and close it without saving.

Examples:
  mepfix scan ./models
  mepfix scan ./models -r --ext .yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := prepare(cmd, args); err != nil {
		return err
	}
	category, err := models.ParseCategory(cfg.Category)
	if err != nil {
		return err
	}

	h := host.New(nil, logger)
	svc := service.NewBatchService(service.FileHost{Host: h}, nil, logger)
	files, err := svc.CollectFiles(cfg.InputDir, cfg.Extension, cfg.Recursive)
	if errors.Is(err, service.ErrNoDocuments) {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s documents in %s.\n", cfg.Extension, cfg.InputDir)
		return nil
	}
	if err != nil {
		return err
	}

	found := scanFiles(cmd.Context(), cmd.OutOrStdout(), h, files, detect.New(category))
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d mismatch(es) in %d document(s).\n", found, len(files))
	return nil
}

// scanFiles prints the mismatches of each file and returns how many were
// found. Documents are always closed with their changes discarded.
func scanFiles(ctx context.Context, w io.Writer, h *host.Host, files []string, d *detect.Detector) int {
	theme := defaultTheme
	found := 0
	for _, file := range files {
		doc, err := h.Open(ctx, file)
		if err != nil {
			fmt.Fprintf(w, "%s %s: %v\n", theme.errorStyle().Render("✗"), filepath.Base(file), err)
			continue
		}

		var lines []string
		for m := range d.Scan(doc.Graph()) {
			lines = append(lines, m.String())
		}
		if err := doc.Close(true); err != nil {
			fmt.Fprintf(w, "Warning: close %s: %v\n", filepath.Base(file), err)
		}

		if len(lines) == 0 {
			fmt.Fprintf(w, "%s %s\n", theme.completedStyle().Render("✓"), filepath.Base(file))
			continue
		}
		found += len(lines)
		fmt.Fprintf(w, "%s %s (%d)\n", theme.statusStyle().Render("!"), filepath.Base(file), len(lines))
		for _, line := range lines {
			fmt.Fprintf(w, "    - %s\n", line)
		}
	}
	return found
}
