// Package remediate severs the subsystems serving overloaded equipment and
// deletes the ones left without any live connection.
package remediate

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
	"github.com/raphaelgruber/mepfix/internal/txn"
)

// Mutator applies graph mutations on behalf of the remediator. *txn.Tx
// implements it.
type Mutator interface {
	Graph() *graph.Graph
	Disconnect(a, b graph.ConnectorID) error
	DeleteSubsystem(id graph.SubsystemID) error
}

// Options selects which subsystems are remediated.
type Options struct {
	// Kinds limits remediation to these subsystem kinds. Empty means all.
	Kinds []models.SubsystemKind
}

// Report counts what one remediation did.
type Report struct {
	Subsystems   int      `yaml:"subsystems"` // subsystems serving the implicated equipment
	Severed      int      `yaml:"severed"`    // links disconnected
	EdgeFailures int      `yaml:"edge_failures"`
	Deleted      int      `yaml:"deleted"`
	Retained     int      `yaml:"retained"` // kept because a live connection remains
	Failures     []string `yaml:"failures,omitempty"`
}

// Remediator runs the two remediation passes.
type Remediator struct {
	kinds  []models.SubsystemKind
	logger *slog.Logger
}

// New creates a remediator. A nil logger uses slog.Default().
func New(opts Options, logger *slog.Logger) *Remediator {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = models.AllKinds
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remediator{kinds: slices.Clone(kinds), logger: logger}
}

// Remediate processes every subsystem serving the given equipment.
//
// The first pass disconnects every peer of every connected connector in each
// subsystem's connector manager. The second pass deletes each subsystem that
// no longer mediates a live connection: none of its own connectors is linked
// and none of its members has a connected connector anywhere in the graph.
// Nothing is deleted until every subsystem has been severed, so the result
// does not depend on subsystem order and a second run changes nothing.
//
// Per-edge and per-deletion failures are recorded and skipped. Only a fatal
// error (txn.ErrAborted) stops remediation; it is returned with the partial
// report and the caller's transaction rolls back.
func (r *Remediator) Remediate(m Mutator, equipment []graph.EquipmentID) (Report, error) {
	g := m.Graph()
	var report Report

	var systems []graph.SubsystemID
	for _, id := range g.SubsystemsServing(equipment) {
		if sys, ok := g.Subsystem(id); ok && slices.Contains(r.kinds, sys.Kind) {
			systems = append(systems, id)
		}
	}
	report.Subsystems = len(systems)

	for _, id := range systems {
		if err := r.sever(m, id, &report); err != nil {
			return report, err
		}
	}

	for _, id := range systems {
		sys, ok := g.Subsystem(id)
		if !ok {
			continue
		}
		if g.MediatesLiveLink(id) {
			report.Retained++
			r.logger.Debug("subsystem retained", "subsystem", sys.Key, "reason", "live connection remains")
			continue
		}
		if err := m.DeleteSubsystem(id); err != nil {
			if errors.Is(err, txn.ErrAborted) {
				return report, err
			}
			report.Failures = append(report.Failures, fmt.Sprintf("delete %s: %v", sys.Key, err))
			r.logger.Warn("subsystem delete failed", "subsystem", sys.Key, "error", err)
			continue
		}
		report.Deleted++
		r.logger.Debug("subsystem deleted", "subsystem", sys.Key)
	}

	r.logger.Info("remediation complete",
		"subsystems", report.Subsystems,
		"severed", report.Severed,
		"edge_failures", report.EdgeFailures,
		"deleted", report.Deleted,
		"retained", report.Retained)
	return report, nil
}

// sever disconnects every link of every connected connector the subsystem
// owns, one peer at a time.
func (r *Remediator) sever(m Mutator, id graph.SubsystemID, report *Report) error {
	g := m.Graph()
	sys, ok := g.Subsystem(id)
	if !ok {
		return nil
	}
	for _, cid := range sys.Connectors {
		if !g.IsConnected(cid) {
			continue
		}
		conn, _ := g.Connector(cid)
		for _, peer := range g.Peers(cid) {
			if err := m.Disconnect(cid, peer); err != nil {
				if errors.Is(err, txn.ErrAborted) {
					return err
				}
				report.EdgeFailures++
				report.Failures = append(report.Failures, fmt.Sprintf("disconnect %s: %v", conn.Key, err))
				r.logger.Warn("disconnect failed", "subsystem", sys.Key, "connector", conn.Key, "error", err)
				continue
			}
			report.Severed++
		}
	}
	return nil
}
