// Package txn scopes graph mutations.
//
// A Group suppresses host advisories for its lifetime according to an
// AdvisoryPolicy. Inside a Group, Transact runs one atomic unit: the graph is
// snapshotted first and restored if the unit fails, panics, or raises an
// advisory the policy will not dismiss.
package txn

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
)

var (
	// ErrAborted marks a transaction that was rolled back because of a fatal
	// or undismissed advisory, or a panic.
	ErrAborted = errors.New("transaction aborted")

	// ErrGroupClosed is returned by Transact after the group was closed.
	ErrGroupClosed = errors.New("advisory group closed")
)

// Target is the document a group mutates.
type Target interface {
	Graph() *graph.Graph
	MarkDirty()
}

// PanicError is a panic recovered inside a transaction.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("%v: panic: %v", ErrAborted, e.Value) }

func (e *PanicError) Unwrap() error { return ErrAborted }

// Group is the outer advisory-suppression scope.
type Group struct {
	target    Target
	policy    AdvisoryPolicy
	logger    *slog.Logger
	dismissed int
	closed    bool
}

// NewGroup opens an advisory group over target. A nil policy dismisses
// warnings; a nil logger uses slog.Default().
func NewGroup(target Target, policy AdvisoryPolicy, logger *slog.Logger) *Group {
	if policy == nil {
		policy = DismissWarnings{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{target: target, policy: policy, logger: logger}
}

// WithSuppressed runs fn inside a new group and closes the group afterwards,
// whether fn succeeded, failed or panicked.
func WithSuppressed(target Target, policy AdvisoryPolicy, logger *slog.Logger, fn func(*Group) error) error {
	g := NewGroup(target, policy, logger)
	defer g.Close()
	return fn(g)
}

// Dismissed returns the number of advisories dismissed so far.
func (g *Group) Dismissed() int {
	return g.dismissed
}

// Close ends the group. It is safe to call more than once.
func (g *Group) Close() {
	if g.closed {
		return
	}
	g.closed = true
	g.logger.Debug("advisory group closed", "dismissed", g.dismissed)
}

// Transact runs fn as one atomic unit. If fn returns an error, panics, or
// the transaction was poisoned by an advisory, the graph is restored to its
// state before the call and the error is returned. On commit the target is
// marked dirty when anything changed.
func (g *Group) Transact(name string, fn func(*Tx) error) (err error) {
	if g.closed {
		return ErrGroupClosed
	}
	gr := g.target.Graph()
	snap := gr.Snapshot()
	tx := &Tx{group: g, graph: gr, name: name}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
		if err == nil && tx.fatal != nil {
			err = tx.fatal
		}
		if err != nil {
			gr.Restore(snap)
			g.logger.Warn("transaction rolled back", "txn", name, "changes", tx.changes, "error", err)
			return
		}
		if tx.changes > 0 {
			g.target.MarkDirty()
		}
		g.logger.Debug("transaction committed", "txn", name, "changes", tx.changes)
	}()

	return fn(tx)
}

// Tx is one open transaction. Its methods implement the mutations the
// remediator needs.
type Tx struct {
	group   *Group
	graph   *graph.Graph
	name    string
	changes int
	fatal   error
}

// Graph returns the graph being mutated.
func (tx *Tx) Graph() *graph.Graph {
	return tx.graph
}

// Changes returns the number of mutations applied so far.
func (tx *Tx) Changes() int {
	return tx.changes
}

// Disconnect severs a link. Once the transaction is poisoned every call
// returns the fatal error.
func (tx *Tx) Disconnect(a, b graph.ConnectorID) error {
	if tx.fatal != nil {
		return tx.fatal
	}
	linked := tx.graph.Linked(a, b) || tx.graph.Linked(b, a)
	advisories, err := tx.graph.Disconnect(a, b)
	if ferr := tx.handle(advisories); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	if linked {
		tx.changes++
	}
	return nil
}

// DeleteSubsystem deletes a subsystem.
func (tx *Tx) DeleteSubsystem(id graph.SubsystemID) error {
	if tx.fatal != nil {
		return tx.fatal
	}
	_, live := tx.graph.Subsystem(id)
	advisories, err := tx.graph.DeleteSubsystem(id)
	if ferr := tx.handle(advisories); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	if live {
		tx.changes++
	}
	return nil
}

func (tx *Tx) handle(advisories []models.Advisory) error {
	g := tx.group
	for _, a := range advisories {
		if a.Fatal() || !g.policy.Dismiss(a) {
			tx.fatal = fmt.Errorf("%w: %s", ErrAborted, a)
			return tx.fatal
		}
		g.dismissed++
		g.logger.Debug("advisory dismissed", "txn", tx.name, "element", a.Element, "message", a.Message)
	}
	return nil
}
