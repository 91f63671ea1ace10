package graph

import (
	"maps"
	"slices"
)

// Snapshot is an opaque deep copy of a graph's state.
type Snapshot struct {
	state *Graph
}

// Snapshot captures the current state for a later Restore.
func (g *Graph) Snapshot() *Snapshot {
	return &Snapshot{state: g.Clone()}
}

// Restore replaces the graph's state with a snapshot taken from it. The
// snapshot stays valid and can be restored again.
func (g *Graph) Restore(s *Snapshot) {
	*g = *s.state.Clone()
}

// Clone returns an independent deep copy.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		Name:          g.Name,
		Phases:        slices.Clone(g.Phases),
		equipment:     make([]Equipment, len(g.equipment)),
		subsystems:    make([]Subsystem, len(g.subsystems)),
		connectors:    make([]Connector, len(g.connectors)),
		equipmentKeys: maps.Clone(g.equipmentKeys),
		subsystemKeys: maps.Clone(g.subsystemKeys),
		connectorKeys: maps.Clone(g.connectorKeys),
	}
	for i, e := range g.equipment {
		e.Parameters = maps.Clone(e.Parameters)
		e.Connectors = slices.Clone(e.Connectors)
		out.equipment[i] = e
	}
	for i, s := range g.subsystems {
		s.Connectors = slices.Clone(s.Connectors)
		s.Members = slices.Clone(s.Members)
		out.subsystems[i] = s
	}
	for i, c := range g.connectors {
		c.peers = slices.Clone(c.peers)
		out.connectors[i] = c
	}
	return out
}
