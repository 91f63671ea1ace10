// Package service runs remediation batches over directories of model documents.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/mepfix/internal/remediate"
)

// RunStatus represents the state of a batch run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
	RunStatusFailed    RunStatus = "failed"
)

// FileState is where a document is in the per-file pipeline.
type FileState string

const (
	FileStatePending     FileState = "pending"
	FileStateOpening     FileState = "opening"
	FileStateOpened      FileState = "opened"
	FileStateDetecting   FileState = "detecting"
	FileStateRemediating FileState = "remediating"
	FileStateSaving      FileState = "saving"
	FileStateExporting   FileState = "exporting"
	FileStateClosed      FileState = "closed"
	FileStateErrored     FileState = "errored"
)

// Pipeline stages named in stage errors and timings.
const (
	StageOpen      = "open"
	StageDetect    = "detect"
	StageRemediate = "remediate"
	StageSave      = "save"
	StageExport    = "export"
	StageClose     = "close"
)

// StageError is a failure caught in one stage of one file.
type StageError struct {
	Stage   string `yaml:"stage"`
	Message string `yaml:"message"`
	Trace   string `yaml:"trace,omitempty"`
}

func (e StageError) String() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

// FileOutcome records what happened to one document.
type FileOutcome struct {
	File        string            `yaml:"file"`
	State       FileState         `yaml:"state"`
	Mismatches  []string          `yaml:"mismatches,omitempty"`
	Remediation *remediate.Report `yaml:"remediation,omitempty"`
	Saved       bool              `yaml:"saved"`
	ExportPath  string            `yaml:"export_path,omitempty"`
	Released    bool              `yaml:"released"` // document closed and lock removed
	Errors      []StageError      `yaml:"errors,omitempty"`
	Duration    time.Duration     `yaml:"duration"`
}

// Failed reports whether any stage failed.
func (o *FileOutcome) Failed() bool {
	return len(o.Errors) > 0
}

func (o *FileOutcome) fail(stage string, err error) StageError {
	se := StageError{Stage: stage, Message: err.Error(), Trace: traceOf(err)}
	o.Errors = append(o.Errors, se)
	return se
}

// BatchResult summarizes a batch run.
type BatchResult struct {
	RunID       string        `yaml:"run_id"`
	Status      RunStatus     `yaml:"status"`
	InputDir    string        `yaml:"input_dir"`
	OutputDir   string        `yaml:"output_dir"`
	StartedAt   time.Time     `yaml:"started_at"`
	CompletedAt *time.Time    `yaml:"completed_at,omitempty"`
	Error       string        `yaml:"error,omitempty"`
	Total       int           `yaml:"total"`
	Processed   int           `yaml:"processed"`
	Skipped     int           `yaml:"skipped"` // files not started because the run was aborted
	Mismatched  int           `yaml:"mismatched"`
	Remediated  int           `yaml:"remediated"`
	Saved       int           `yaml:"saved"`
	Exported    int           `yaml:"exported"`
	Errored     int           `yaml:"errored"`
	Files       []FileOutcome `yaml:"files"`
	Errors      []string      `yaml:"errors,omitempty"`
}

func newBatchResult(inputDir, outputDir string) *BatchResult {
	return &BatchResult{
		RunID:     uuid.New().String()[:8], // short id for log lines and report names
		Status:    RunStatusPending,
		InputDir:  inputDir,
		OutputDir: outputDir,
		StartedAt: time.Now(),
	}
}

func (r *BatchResult) record(o FileOutcome) {
	r.Processed++
	if len(o.Mismatches) > 0 {
		r.Mismatched++
	}
	if o.Remediation != nil && !hasStage(o.Errors, StageRemediate) {
		r.Remediated++
	}
	if o.Saved {
		r.Saved++
	}
	if o.ExportPath != "" {
		r.Exported++
	}
	if o.Failed() {
		r.Errored++
		for _, e := range o.Errors {
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", o.File, e))
		}
	}
	r.Files = append(r.Files, o)
}

func (r *BatchResult) finish(status RunStatus) {
	r.Status = status
	now := time.Now()
	r.CompletedAt = &now
}

func hasStage(errs []StageError, stage string) bool {
	for _, e := range errs {
		if e.Stage == stage {
			return true
		}
	}
	return false
}

// ReportPath returns where WriteReport stores a run's report.
func ReportPath(dir, runID string) string {
	return filepath.Join(dir, "mepfix-run-"+runID+".yaml")
}

// WriteReport saves the result as YAML in dir and returns the file path.
func WriteReport(dir string, r *BatchResult) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := ReportPath(dir, r.RunID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(path string) (*BatchResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r BatchResult
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}
