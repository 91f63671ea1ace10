package remediate

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/mepfix/internal/detect"
	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
	"github.com/raphaelgruber/mepfix/internal/parser"
	"github.com/raphaelgruber/mepfix/internal/txn"
)

type fakeDoc struct{ g *graph.Graph }

func (d *fakeDoc) Graph() *graph.Graph { return d.g }
func (d *fakeDoc) MarkDirty()          {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func load(t *testing.T, src string) *graph.Graph {
	t.Helper()
	g, err := parser.Parse([]byte(src))
	require.NoError(t, err)
	return g
}

func encode(t *testing.T, g *graph.Graph) string {
	t.Helper()
	b, err := parser.Encode(g)
	require.NoError(t, err)
	return string(b)
}

func equipment(t *testing.T, g *graph.Graph, keys ...string) []graph.EquipmentID {
	t.Helper()
	ids := make([]graph.EquipmentID, 0, len(keys))
	for _, k := range keys {
		id, ok := g.EquipmentByKey(k)
		require.True(t, ok, k)
		ids = append(ids, id)
	}
	return ids
}

// run remediates inside a suppression group the way the batch does.
func run(t *testing.T, g *graph.Graph, opts Options, keys ...string) (Report, error) {
	t.Helper()
	r := New(opts, quietLogger())
	var report Report
	err := txn.WithSuppressed(&fakeDoc{g}, txn.DismissWarnings{}, quietLogger(), func(group *txn.Group) error {
		return group.Transact("remediate", func(tx *txn.Tx) error {
			var err error
			report, err = r.Remediate(tx, equipment(t, g, keys...))
			return err
		})
	})
	return report, err
}

const overloadedPanel = `name: overload
equipment:
  - id: LP-1
    category: electrical_equipment
    parameters: {Total Connected Load: 120, Panel Capacity: 100}
    connectors: [{id: LP-1/1}, {id: LP-1/2}]
  - id: REC-1
    connectors: [{id: REC-1/1}]
systems:
  - id: CKT-1
    kind: circuit
    load: 60
    connectors: [{id: CKT-1/1}]
  - id: CKT-2
    kind: circuit
    load: 60
    connectors: [{id: CKT-2/1}]
links:
  - [LP-1/1, CKT-1/1]
  - [LP-1/2, CKT-2/1]
  - [REC-1/1, CKT-2/1]
`

func TestRemediate_SeversAndDeletes(t *testing.T) {
	g := load(t, overloadedPanel)

	report, err := run(t, g, Options{}, "LP-1")
	require.NoError(t, err)

	assert.Equal(t, Report{Subsystems: 2, Severed: 3, Deleted: 2}, report)
	assert.Empty(t, g.SubsystemIDs())
	assert.Zero(t, g.Stats().Links)
	assert.Empty(t, slices.Collect(detect.New("").Scan(g)), "mismatch cleared")
}

func TestRemediate_SeversEveryPeer(t *testing.T) {
	g := load(t, overloadedPanel)
	ckt2, _ := g.ConnectorByKey("CKT-2/1")
	require.Len(t, g.Peers(ckt2), 2)

	_, err := run(t, g, Options{}, "LP-1")
	require.NoError(t, err)

	rec, _ := g.EquipmentByKey("REC-1")
	assert.False(t, g.HasLiveConnector(rec))
}

func TestRemediate_Idempotent(t *testing.T) {
	g := load(t, overloadedPanel)

	_, err := run(t, g, Options{}, "LP-1")
	require.NoError(t, err)
	after := encode(t, g)

	report, err := run(t, g, Options{}, "LP-1")
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Equal(t, after, encode(t, g))
}

const sharedMember = `name: shared
equipment:
  - id: LP-1
    category: electrical_equipment
    parameters: {Total Connected Load: 120, Panel Capacity: 100}
    connectors: [{id: LP-1/1}, {id: LP-1/2}]
systems:
  - id: CKT-1
    kind: circuit
    load: 120
    connectors: [{id: CKT-1/1}]
  - id: DUCT-1
    kind: duct
    connectors: [{id: DUCT-1/1}]
links:
  - [LP-1/1, CKT-1/1]
  - [LP-1/2, DUCT-1/1]
`

func TestRemediate_RetainsWhenMemberLiveElsewhere(t *testing.T) {
	g := load(t, sharedMember)

	report, err := run(t, g, Options{Kinds: []models.SubsystemKind{models.KindCircuit}}, "LP-1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Subsystems)
	assert.Equal(t, 1, report.Severed)
	assert.Equal(t, 1, report.Retained)
	assert.Zero(t, report.Deleted)
	_, ok := g.SubsystemByKey("CKT-1")
	assert.True(t, ok, "member still linked to DUCT-1")
	_, ok = g.SubsystemByKey("DUCT-1")
	assert.True(t, ok)
}

func TestRemediate_AllKindsClearsSharedMember(t *testing.T) {
	g := load(t, sharedMember)

	report, err := run(t, g, Options{}, "LP-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Deleted)
	assert.Empty(t, g.SubsystemIDs())
}

func TestRemediate_OrderIndependent(t *testing.T) {
	// Same graph with subsystems listed in the opposite order.
	reversed := `name: shared
equipment:
  - id: LP-1
    category: electrical_equipment
    parameters: {Total Connected Load: 120, Panel Capacity: 100}
    connectors: [{id: LP-1/1}, {id: LP-1/2}]
systems:
  - id: DUCT-1
    kind: duct
    connectors: [{id: DUCT-1/1}]
  - id: CKT-1
    kind: circuit
    load: 120
    connectors: [{id: CKT-1/1}]
links:
  - [LP-1/1, CKT-1/1]
  - [LP-1/2, DUCT-1/1]
`
	a, b := load(t, sharedMember), load(t, reversed)
	ra, err := run(t, a, Options{}, "LP-1")
	require.NoError(t, err)
	rb, err := run(t, b, Options{}, "LP-1")
	require.NoError(t, err)

	assert.Equal(t, ra, rb)
	assert.Equal(t, a.Stats(), b.Stats())
}

func TestRemediate_LockedEdgeIsBestEffort(t *testing.T) {
	g := load(t, `name: locked
equipment:
  - id: LP-1
    category: electrical_equipment
    connectors: [{id: LP-1/1, locked: true}, {id: LP-1/2}]
systems:
  - id: CKT-1
    kind: circuit
    connectors: [{id: CKT-1/1}, {id: CKT-1/2}]
  - id: CKT-2
    kind: circuit
    connectors: [{id: CKT-2/1}]
links:
  - [LP-1/1, CKT-1/1]
  - [LP-1/2, CKT-1/2]
  - [LP-1/2, CKT-2/1]
`)

	report, err := run(t, g, Options{}, "LP-1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.EdgeFailures)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "CKT-1/1")
	assert.Equal(t, 2, report.Severed, "remaining edges are still severed")
	assert.Equal(t, 2, report.Retained, "locked link keeps the member live")
	assert.Zero(t, report.Deleted)
}

func TestRemediate_RetainsLockedLinkOutsideMembers(t *testing.T) {
	g := load(t, `name: locked-outside-members
equipment:
  - id: LP-1
    category: electrical_equipment
    parameters: {Total Connected Load: 120, Panel Capacity: 100}
    connectors: [{id: LP-1/1}]
  - id: MP-1
    connectors: [{id: MP-1/1, locked: true}]
systems:
  - id: CKT-1
    kind: circuit
    load: 120
    connectors: [{id: CKT-1/1}, {id: CKT-1/2}]
    members: [LP-1]
links:
  - [LP-1/1, CKT-1/1]
  - [MP-1/1, CKT-1/2]
`)

	report, err := run(t, g, Options{}, "LP-1")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Severed)
	assert.Equal(t, 1, report.EdgeFailures)
	assert.Equal(t, 1, report.Retained, "CKT-1 still mediates the locked link")
	assert.Zero(t, report.Deleted)

	_, ok := g.SubsystemByKey("CKT-1")
	assert.True(t, ok)
	mp, _ := g.ConnectorByKey("MP-1/1")
	ckt, _ := g.ConnectorByKey("CKT-1/2")
	assert.True(t, g.Linked(mp, ckt))
	assert.True(t, g.Linked(ckt, mp))
}

func TestRemediate_PinnedRollsBack(t *testing.T) {
	g := load(t, `name: pinned
equipment:
  - id: LP-1
    category: electrical_equipment
    connectors: [{id: LP-1/1}]
systems:
  - id: CKT-1
    kind: circuit
    pinned: true
    connectors: [{id: CKT-1/1}]
links:
  - [LP-1/1, CKT-1/1]
`)
	before := encode(t, g)

	_, err := run(t, g, Options{}, "LP-1")

	assert.ErrorIs(t, err, txn.ErrAborted)
	assert.Equal(t, before, encode(t, g))
}

type failingMutator struct {
	*txn.Tx
	failOn graph.ConnectorID
	fatal  bool
}

func (m failingMutator) Disconnect(a, b graph.ConnectorID) error {
	if a == m.failOn || b == m.failOn {
		if m.fatal {
			return txn.ErrAborted
		}
		return errors.New("host refused")
	}
	return m.Tx.Disconnect(a, b)
}

func TestRemediate_InjectedFailureMidRemediationRollsBack(t *testing.T) {
	g := load(t, overloadedPanel)
	before := encode(t, g)
	rec, _ := g.ConnectorByKey("REC-1/1")

	group := txn.NewGroup(&fakeDoc{g}, txn.DismissWarnings{}, quietLogger())
	defer group.Close()
	err := group.Transact("remediate", func(tx *txn.Tx) error {
		_, err := New(Options{}, quietLogger()).Remediate(failingMutator{Tx: tx, failOn: rec, fatal: true}, equipment(t, g, "LP-1"))
		return err
	})

	assert.ErrorIs(t, err, txn.ErrAborted)
	assert.Equal(t, before, encode(t, g))
}

func TestRemediate_NonFatalEdgeFailureContinues(t *testing.T) {
	g := load(t, overloadedPanel)
	rec, _ := g.ConnectorByKey("REC-1/1")

	var report Report
	group := txn.NewGroup(&fakeDoc{g}, txn.DismissWarnings{}, quietLogger())
	defer group.Close()
	err := group.Transact("remediate", func(tx *txn.Tx) error {
		var err error
		report, err = New(Options{}, quietLogger()).Remediate(failingMutator{Tx: tx, failOn: rec}, equipment(t, g, "LP-1"))
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 1, report.EdgeFailures)
	assert.Equal(t, 2, report.Severed)
	assert.Equal(t, 1, report.Deleted, "CKT-1 deleted")
	assert.Equal(t, 1, report.Retained, "CKT-2 still mediates REC-1")
}
