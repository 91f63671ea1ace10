// Package metrics collects stage and document timings for one batch run.
package metrics

import (
	"maps"
	"slices"
	"sync"
	"time"
)

// Pipeline stages, in the order a document passes through them.
const (
	OpOpen      = "open"
	OpDetect    = "detect"
	OpRemediate = "remediate"
	OpSave      = "save"
	OpExport    = "export"
)

// Stages lists the pipeline stages in order.
var Stages = []string{OpOpen, OpDetect, OpRemediate, OpSave, OpExport}

// StageStats aggregates every call of one stage.
type StageStats struct {
	Stage    string
	Count    int64
	Failures int64
	Total    time.Duration
	Min      time.Duration
	Max      time.Duration
}

// Avg returns the mean call duration.
func (s StageStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// FileStats aggregates whole documents, open to close.
type FileStats struct {
	Count       int
	Failed      int
	Total       time.Duration
	Slowest     string
	SlowestTime time.Duration
}

// Snapshot is the run's statistics at a point in time.
type Snapshot struct {
	Elapsed time.Duration
	Stages  []StageStats // pipeline order; stages never recorded are absent
	Files   FileStats
}

// Stage returns the statistics of one stage.
func (s Snapshot) Stage(name string) (StageStats, bool) {
	for _, st := range s.Stages {
		if st.Stage == name {
			return st, true
		}
	}
	return StageStats{}, false
}

// Collector aggregates timings. It is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	start  time.Time
	stages map[string]*StageStats
	files  FileStats
}

// NewCollector creates a collector; elapsed time counts from now.
func NewCollector() *Collector {
	return &Collector{
		start:  time.Now(),
		stages: make(map[string]*StageStats),
	}
}

// RecordStage records one call of a stage. A non-nil err counts as a failure.
func (c *Collector) RecordStage(stage string, d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stages[stage]
	if !ok {
		s = &StageStats{Stage: stage, Min: d}
		c.stages[stage] = s
	}
	s.Count++
	s.Total += d
	s.Min = min(s.Min, d)
	s.Max = max(s.Max, d)
	if err != nil {
		s.Failures++
	}
}

// RecordFile records one finished document.
func (c *Collector) RecordFile(path string, d time.Duration, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.files.Count++
	c.files.Total += d
	if failed {
		c.files.Failed++
	}
	if d > c.files.SlowestTime || c.files.Slowest == "" {
		c.files.Slowest = path
		c.files.SlowestTime = d
	}
}

// Snapshot copies the current statistics. Stages outside the known pipeline
// follow the known ones in name order.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{Elapsed: time.Since(c.start), Files: c.files}
	for _, name := range Stages {
		if s, ok := c.stages[name]; ok {
			snap.Stages = append(snap.Stages, *s)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(c.stages)) {
		if !slices.Contains(Stages, name) {
			snap.Stages = append(snap.Stages, *c.stages[name])
		}
	}
	return snap
}
