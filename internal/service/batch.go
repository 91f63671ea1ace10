package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/raphaelgruber/mepfix/internal/detect"
	"github.com/raphaelgruber/mepfix/internal/export"
	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/host"
	"github.com/raphaelgruber/mepfix/internal/metrics"
	"github.com/raphaelgruber/mepfix/internal/models"
	"github.com/raphaelgruber/mepfix/internal/remediate"
	"github.com/raphaelgruber/mepfix/internal/txn"
)

// ErrNoDocuments indicates the input directory holds no model documents.
var ErrNoDocuments = errors.New("no model documents found")

// Document is an open model document as the batch sees it.
type Document interface {
	txn.Target
	Name() string
	PhaseCount() int
	Save(ctx context.Context) error
	Export(ctx context.Context, dir, name string, cfg export.Config) (string, error)
	Close(discard bool) error
}

// ModelHost opens documents.
type ModelHost interface {
	Open(ctx context.Context, path string) (Document, error)
}

// FileHost adapts *host.Host to ModelHost.
type FileHost struct {
	*host.Host
}

// Open opens a document on the wrapped host.
func (h FileHost) Open(ctx context.Context, path string) (Document, error) {
	doc, err := h.Host.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Scope selects the equipment implicated by a mismatch.
type Scope string

const (
	// ScopeMismatched remediates the subsystems serving flagged equipment.
	ScopeMismatched Scope = "mismatched"
	// ScopeCategory remediates the subsystems serving every monitored node.
	ScopeCategory Scope = "category"
)

// ParseScope validates a scope name. Empty means ScopeMismatched.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScopeMismatched, nil
	case ScopeMismatched, ScopeCategory:
		return sc, nil
	default:
		return "", fmt.Errorf("unknown scope %q (want mismatched or category)", s)
	}
}

// BatchOptions configures a batch run.
type BatchOptions struct {
	InputDir  string
	OutputDir string // export directory
	Extension string // model file extension, e.g. ".mep"
	Recursive bool
	Scope     Scope
	Category  models.Category        // monitored equipment category
	Kinds     []models.SubsystemKind // subsystem kinds to remediate, empty for all
	Strict    bool                   // abort remediation on any advisory
	Intent    export.Intent
	// OnStart, if set, is called once the input files are listed.
	OnStart func(total int)
	// OnFile, if set, is called after each file is closed.
	OnFile func(FileOutcome)
}

// BatchService drives documents through open, detect, remediate, save,
// export and close, one at a time.
type BatchService struct {
	host    ModelHost
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewBatchService creates a batch service. A nil collector allocates one;
// a nil logger uses slog.Default().
func NewBatchService(h ModelHost, collector *metrics.Collector, logger *slog.Logger) *BatchService {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchService{host: h, metrics: collector, logger: logger}
}

// Metrics returns the stage timing collector.
func (s *BatchService) Metrics() *metrics.Collector {
	return s.metrics
}

// CollectFiles walks a directory and returns model files with the given
// extension in lexical order. Lock sidecars and hidden files are skipped.
func (s *BatchService) CollectFiles(dirPath, ext string, recursive bool) ([]string, error) {
	ext = strings.ToLower(ext)
	var files []string
	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && !recursive && path != dirPath {
			return filepath.SkipDir
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) == ext {
			files = append(files, path)
		}
		return nil
	}

	if err := filepath.WalkDir(dirPath, walkFn); err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w (extension %s)", dirPath, ErrNoDocuments, ext)
	}
	slices.Sort(files)
	return files, nil
}

// Run processes every model file in opts.InputDir.
//
// Per-file failures are recorded in the result and never stop the batch.
// Run returns an error only when the options are invalid or the directory
// cannot be listed. Cancelling ctx stops the batch at the next file
// boundary; the file in progress is finished first.
func (s *BatchService) Run(ctx context.Context, opts BatchOptions) (*BatchResult, error) {
	if err := opts.Intent.Validate(); err != nil {
		return nil, fmt.Errorf("export settings: %w", err)
	}
	if opts.Scope == "" {
		opts.Scope = ScopeMismatched
	}

	result := newBatchResult(opts.InputDir, opts.OutputDir)
	logger := s.logger.With("run_id", result.RunID)

	files, err := s.CollectFiles(opts.InputDir, opts.Extension, opts.Recursive)
	switch {
	case errors.Is(err, ErrNoDocuments):
		logger.Warn("no model documents found", "dir", opts.InputDir, "extension", opts.Extension)
		result.finish(RunStatusCompleted)
		return result, nil
	case err != nil:
		result.Error = err.Error()
		result.finish(RunStatusFailed)
		return result, err
	}

	result.Total = len(files)
	result.Status = RunStatusRunning
	logger.Info("batch started", "dir", opts.InputDir, "files", len(files), "output", opts.OutputDir, "scope", opts.Scope)
	if opts.OnStart != nil {
		opts.OnStart(len(files))
	}

	for i, file := range files {
		if ctx.Err() != nil {
			result.Skipped = len(files) - i
			logger.Warn("batch aborted", "outcome", "aborted", "processed", i, "remaining", result.Skipped, "next", file)
			result.finish(RunStatusAborted)
			return result, nil
		}

		logger.Info("processing file", "file", filepath.Base(file), "progress", fmt.Sprintf("%d/%d", i+1, len(files)))
		// A started file runs to completion even if ctx is cancelled meanwhile.
		outcome := s.processFile(context.WithoutCancel(ctx), logger.With("file", file), file, opts)
		result.record(outcome)
		s.metrics.RecordFile(file, outcome.Duration, outcome.Failed())
		if opts.OnFile != nil {
			opts.OnFile(outcome)
		}
	}

	result.finish(RunStatusCompleted)
	logger.Info("batch completed",
		"processed", result.Processed,
		"mismatched", result.Mismatched,
		"remediated", result.Remediated,
		"saved", result.Saved,
		"exported", result.Exported,
		"errored", result.Errored)
	return result, nil
}

// processFile runs one document through the pipeline and always releases it.
func (s *BatchService) processFile(ctx context.Context, logger *slog.Logger, path string, opts BatchOptions) (outcome FileOutcome) {
	start := time.Now()
	outcome = FileOutcome{File: path, State: FileStateOpening}

	doc, err := s.open(ctx, path)
	if err != nil {
		se := outcome.fail(StageOpen, err)
		outcome.State = FileStateErrored
		outcome.Duration = time.Since(start)
		logger.Error("open failed", "outcome", "open_failed", "error", se.Message, "trace", se.Trace)
		return outcome
	}
	outcome.State = FileStateOpened
	logger.Info("document opened", "outcome", "opened")

	defer func() {
		if r := recover(); r != nil {
			se := outcome.fail(string(outcome.State), &panicError{value: r, stack: debug.Stack()})
			logger.Error("file processing panicked", "outcome", "errored", "error", se.Message, "trace", se.Trace)
		}
		if err := doc.Close(true); err != nil {
			se := outcome.fail(StageClose, err)
			logger.Error("close failed", "outcome", "errored", "error", se.Message, "trace", se.Trace)
		}
		outcome.Released = true
		outcome.State = FileStateClosed
		if outcome.Failed() {
			outcome.State = FileStateErrored
		}
		outcome.Duration = time.Since(start)
		logger.Info("document closed", "outcome", "closed", "state", outcome.State, "duration", outcome.Duration)
	}()

	outcome.State = FileStateDetecting
	mismatches, equipment, err := s.detect(doc.Graph(), opts)
	if err != nil {
		se := outcome.fail(StageDetect, err)
		logger.Error("detection failed", "outcome", "errored", "error", se.Message, "trace", se.Trace)
		return outcome
	}
	for _, m := range mismatches {
		outcome.Mismatches = append(outcome.Mismatches, m.String())
		logger.Info("mismatch found", "outcome", "mismatch",
			"equipment", m.Equipment, "load", m.TotalLoad, "capacity", m.Capacity)
	}

	if len(mismatches) > 0 {
		outcome.State = FileStateRemediating
		report, err := s.remediate(doc, equipment, opts, logger)
		outcome.Remediation = &report
		if err != nil {
			se := outcome.fail(StageRemediate, err)
			logger.Error("remediation failed, changes rolled back", "outcome", "remediation_failed", "error", se.Message, "trace", se.Trace)
		} else {
			logger.Info("document remediated", "outcome", "remediated",
				"severed", report.Severed, "deleted", report.Deleted, "retained", report.Retained, "edge_failures", report.EdgeFailures)
		}
	}

	outcome.State = FileStateSaving
	if err := s.timed(metrics.OpSave, func() error { return doc.Save(ctx) }); err != nil {
		se := outcome.fail(StageSave, err)
		logger.Error("save failed", "outcome", "save_failed", "error", se.Message, "trace", se.Trace)
	} else {
		outcome.Saved = true
		logger.Info("document saved", "outcome", "saved")
	}

	outcome.State = FileStateExporting
	cfg := export.Resolve(opts.Intent, doc.PhaseCount())
	var exported string
	err = s.timed(metrics.OpExport, func() error {
		var err error
		exported, err = doc.Export(ctx, opts.OutputDir, doc.Name(), cfg)
		return err
	})
	if err != nil {
		se := outcome.fail(StageExport, err)
		logger.Error("export failed", "outcome", "export_failed", "error", se.Message, "trace", se.Trace)
	} else {
		outcome.ExportPath = exported
		logger.Info("document exported", "outcome", "exported", "path", exported, "version", cfg.Version)
	}
	return outcome
}

func (s *BatchService) open(ctx context.Context, path string) (Document, error) {
	var doc Document
	err := s.timed(metrics.OpOpen, func() error {
		var err error
		doc, err = s.host.Open(ctx, path)
		return err
	})
	return doc, err
}

// detect returns the mismatches and the equipment implicated by them. A
// panic inside the detector is returned as an error.
func (s *BatchService) detect(g *graph.Graph, opts BatchOptions) (mismatches []models.Mismatch, equipment []graph.EquipmentID, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	d := detect.New(opts.Category)
	err = s.timed(metrics.OpDetect, func() error {
		for m := range d.Scan(g) {
			mismatches = append(mismatches, m)
		}
		return nil
	})
	if len(mismatches) == 0 {
		return nil, nil, err
	}
	if opts.Scope == ScopeCategory {
		return mismatches, d.Monitored(g), err
	}
	for _, m := range mismatches {
		if id, ok := g.EquipmentByKey(m.Equipment); ok {
			equipment = append(equipment, id)
		}
	}
	return mismatches, equipment, err
}

// remediate runs the remediator in one transaction inside an advisory group.
func (s *BatchService) remediate(doc Document, equipment []graph.EquipmentID, opts BatchOptions, logger *slog.Logger) (remediate.Report, error) {
	r := remediate.New(remediate.Options{Kinds: opts.Kinds}, logger)
	var report remediate.Report
	err := s.timed(metrics.OpRemediate, func() error {
		return txn.WithSuppressed(doc, txn.PolicyFor(opts.Strict), logger, func(group *txn.Group) error {
			return group.Transact("remediate "+doc.Name(), func(tx *txn.Tx) error {
				var err error
				report, err = r.Remediate(tx, equipment)
				return err
			})
		})
	})
	return report, err
}

func (s *BatchService) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.metrics.RecordStage(op, time.Since(start), err)
	return err
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// traceOf returns a stack trace for errors that carry one.
func traceOf(err error) string {
	var pe *panicError
	if errors.As(err, &pe) {
		return string(pe.stack)
	}
	var tpe *txn.PanicError
	if errors.As(err, &tpe) {
		return string(tpe.Stack)
	}
	var st stackTracer
	if errors.As(err, &st) {
		return fmt.Sprintf("%+v", st)
	}
	return ""
}
