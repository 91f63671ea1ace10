package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
)

const panelDoc = `name: Level 2 Electrical
phases: [Existing, New Construction]
equipment:
  - id: LP-2A
    name: Panel LP-2A
    category: electrical_equipment
    parameters: {Total Connected Load: 120, Panel Capacity: 100}
    connectors: [{id: LP-2A/1}, {id: LP-2A/2, locked: true}]
  - id: RTU-1
    category: mechanical_equipment
    connectors: [{id: RTU-1/1}]
systems:
  - id: CKT-1
    name: Circuit 1
    kind: circuit
    load: 60
    connectors: [{id: CKT-1/1}]
    members: [LP-2A]
  - id: CKT-2
    kind: circuit
    load: 60
    connectors: [{id: CKT-2/1}, {id: CKT-2/2}]
links:
  - [LP-2A/1, CKT-1/1]
  - [LP-2A/2, CKT-2/1]
  - [RTU-1/1, CKT-2/2]
`

func TestParse(t *testing.T) {
	g, err := Parse([]byte(panelDoc))
	require.NoError(t, err)

	assert.Equal(t, "Level 2 Electrical", g.Name)
	assert.Equal(t, []string{"Existing", "New Construction"}, g.Phases)
	assert.Equal(t, graph.Stats{Equipment: 2, Subsystems: 2, Connectors: 6, Links: 3}, g.Stats())

	lp, ok := g.EquipmentByKey("LP-2A")
	require.True(t, ok)
	eq, _ := g.Equipment(lp)
	assert.Equal(t, models.CategoryElectricalEquipment, eq.Category)
	assert.Equal(t, 100.0, eq.Param(models.ParamPanelCapacity))

	rtu, _ := g.EquipmentByKey("RTU-1")
	eq, _ = g.Equipment(rtu)
	assert.Equal(t, 0.0, eq.Param(models.ParamPanelCapacity), "missing parameter resolves to 0")

	locked, ok := g.ConnectorByKey("LP-2A/2")
	require.True(t, ok)
	c, _ := g.Connector(locked)
	assert.True(t, c.Locked)

	// CKT-2 omits members, so they come from its links.
	sid, _ := g.SubsystemByKey("CKT-2")
	sys, _ := g.Subsystem(sid)
	assert.Equal(t, []graph.EquipmentID{lp, rtu}, sys.Members)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown field", "name: x\ncolour: red\n"},
		{"negative parameter", "equipment:\n  - id: A\n    parameters: {Panel Capacity: -5}\n"},
		{"non-finite parameter", "equipment:\n  - id: A\n    parameters: {Panel Capacity: .inf}\n"},
		{"duplicate equipment", "equipment:\n  - id: A\n  - id: A\n"},
		{"duplicate connector", "equipment:\n  - id: A\n    connectors: [{id: c}, {id: c}]\n"},
		{"missing id", "equipment:\n  - name: nameless\n"},
		{"unknown category", "equipment:\n  - id: A\n    category: furniture\n"},
		{"unknown kind", "systems:\n  - id: S\n    kind: telecom\n"},
		{"negative load", "systems:\n  - id: S\n    kind: duct\n    load: -1\n"},
		{"link to unknown connector", "equipment:\n  - id: A\n    connectors: [{id: a}]\nlinks:\n  - [a, b]\n"},
		{"self link", "equipment:\n  - id: A\n    connectors: [{id: a}]\nlinks:\n  - [a, a]\n"},
		{"short link", "equipment:\n  - id: A\n    connectors: [{id: a}]\nlinks:\n  - [a]\n"},
		{"unknown member", "systems:\n  - id: S\n    kind: piping\n    members: [ghost]\n"},
		{"not yaml", "equipment: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	g, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, graph.Stats{}, g.Stats())
}

func TestEncode_RoundTrip(t *testing.T) {
	g, err := Parse([]byte(panelDoc))
	require.NoError(t, err)

	first, err := Encode(g)
	require.NoError(t, err)

	again, err := Parse(first)
	require.NoError(t, err)
	second, err := Encode(again)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.Equal(t, g.Stats(), again.Stats())
}

func TestEncode_OmitsDeletedSubsystems(t *testing.T) {
	g, err := Parse([]byte(panelDoc))
	require.NoError(t, err)

	sid, _ := g.SubsystemByKey("CKT-1")
	_, err = g.DeleteSubsystem(sid)
	require.NoError(t, err)

	doc := Flatten(g)
	require.Len(t, doc.Systems, 1)
	assert.Equal(t, "CKT-2", doc.Systems[0].ID)
	assert.Equal(t, [][]string{{"LP-2A/2", "CKT-2/1"}, {"RTU-1/1", "CKT-2/2"}}, doc.Links)
	for _, s := range doc.Systems {
		assert.NotNil(t, s.Members)
	}
}
