package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/raphaelgruber/mepfix/internal/export"
	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
	"github.com/raphaelgruber/mepfix/internal/parser"
)

// LockSuffix is appended to a document path to form its lock sidecar.
const LockSuffix = ".lock"

// Exporter writes a graph to an interchange file and returns its path.
type Exporter interface {
	Export(ctx context.Context, g *graph.Graph, dir, name string, cfg export.Config) (string, error)
}

// Host is a file-backed model host. It holds at most one open document.
type Host struct {
	mu       sync.Mutex
	current  *Document
	exporter Exporter
	logger   *slog.Logger
}

// New creates a host. A nil exporter uses export.NewStepWriter().
func New(exporter Exporter, logger *slog.Logger) *Host {
	if exporter == nil {
		exporter = export.NewStepWriter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{exporter: exporter, logger: logger}
}

// Open reads and parses a model document and takes its lock. It fails with
// ErrHostBusy while another document is open.
func (h *Host) Open(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		return nil, fmt.Errorf("open %s: %w (%s)", path, ErrHostBusy, h.current.path)
	}

	lock := path + LockSuffix
	lf, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("open %s: %w", path, ErrLocked)
		}
		return nil, pkgerrors.Wrapf(err, "lock %s", path)
	}
	fmt.Fprintf(lf, "pid %d\n", os.Getpid())
	lf.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		os.Remove(lock)
		return nil, pkgerrors.Wrapf(err, "read %s", path)
	}
	g, err := parser.Parse(data)
	if err != nil {
		os.Remove(lock)
		return nil, pkgerrors.Wrapf(err, "parse %s", path)
	}

	doc := &Document{
		host:      h,
		path:      path,
		lock:      lock,
		graph:     g,
		persisted: g.Clone(),
		state:     models.DocOpen,
	}
	h.current = doc
	h.logger.Debug("document opened", "file", path, "equipment", g.Stats().Equipment, "subsystems", g.Stats().Subsystems)
	return doc, nil
}

// Current returns the open document, or nil.
func (h *Host) Current() *Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *Host) release(doc *Document) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == doc {
		h.current = nil
	}
}

// Document is one open model document.
type Document struct {
	host      *Host
	path      string
	lock      string
	graph     *graph.Graph
	persisted *graph.Graph
	state     models.DocState
}

// Path returns the document's file path.
func (d *Document) Path() string { return d.path }

// Name returns the file's base name without extension.
func (d *Document) Name() string {
	base := filepath.Base(d.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Graph returns the in-memory graph. Mutations must go through a txn.Group.
func (d *Document) Graph() *graph.Graph { return d.graph }

// State returns the document's lifecycle state.
func (d *Document) State() models.DocState { return d.state }

// PhaseCount returns the number of phases declared in the document.
func (d *Document) PhaseCount() int { return len(d.graph.Phases) }

// MarkDirty records uncommitted in-memory mutations.
func (d *Document) MarkDirty() {
	if d.state != models.DocClosed {
		d.state = models.DocDirty
	}
}

// Persisted returns the graph as last read from or written to disk.
func (d *Document) Persisted() *graph.Graph { return d.persisted }

// Save writes the document if it has unsaved changes. The file is replaced
// atomically; on failure the file on disk and the persisted snapshot are
// unchanged.
func (d *Document) Save(ctx context.Context) error {
	if d.state == models.DocClosed {
		return ErrNotOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.state != models.DocDirty {
		return nil
	}
	data, err := parser.Encode(d.graph)
	if err != nil {
		return pkgerrors.WithStack(err)
	}
	if err := writeAtomic(d.path, data); err != nil {
		return err
	}
	d.persisted = d.graph.Clone()
	d.state = models.DocSaved
	return nil
}

// Export hands the persisted graph to the exporter. Unsaved changes are not
// exported.
func (d *Document) Export(ctx context.Context, dir, name string, cfg export.Config) (string, error) {
	if d.state == models.DocClosed {
		return "", ErrNotOpen
	}
	return d.host.exporter.Export(ctx, d.persisted, dir, name, cfg)
}

// Close releases the document and its lock. With discard set, unsaved
// changes are dropped; otherwise they are saved first. The lock is removed
// and the host freed even when saving fails. Closing twice is a no-op.
func (d *Document) Close(discard bool) error {
	if d.state == models.DocClosed {
		return nil
	}
	var errs []error
	if !discard && d.state == models.DocDirty {
		if err := d.Save(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(d.lock); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, pkgerrors.Wrapf(err, "unlock %s", d.path))
	}
	d.state = models.DocClosed
	d.host.release(d)
	d.host.logger.Debug("document closed", "file", d.path, "discard", discard)
	return errors.Join(errs...)
}

func writeAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+"-*.tmp")
	if err != nil {
		return pkgerrors.Wrapf(err, "save %s", path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return pkgerrors.Wrapf(err, "save %s", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return pkgerrors.Wrapf(err, "save %s", path)
	}
	if err := tmp.Close(); err != nil {
		return pkgerrors.Wrapf(err, "save %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return pkgerrors.Wrapf(err, "save %s", path)
	}
	return nil
}
