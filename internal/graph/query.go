package graph

import (
	"slices"
)

// Stats summarizes the live contents of a graph.
type Stats struct {
	Equipment  int
	Subsystems int
	Connectors int
	Links      int
}

// Stats counts live elements and links.
func (g *Graph) Stats() Stats {
	st := Stats{Equipment: len(g.equipment)}
	for _, s := range g.subsystems {
		if !s.deleted {
			st.Subsystems++
		}
	}
	for _, c := range g.connectors {
		if c.deleted {
			continue
		}
		st.Connectors++
		st.Links += len(c.peers)
	}
	st.Links /= 2
	return st
}

// EquipmentIDs returns every equipment id in allocation order.
func (g *Graph) EquipmentIDs() []EquipmentID {
	ids := make([]EquipmentID, len(g.equipment))
	for i := range g.equipment {
		ids[i] = EquipmentID(i)
	}
	return ids
}

// Equipment returns a copy of an equipment node. The Parameters map and
// Connectors slice are shared with the graph and must not be modified.
func (g *Graph) Equipment(id EquipmentID) (Equipment, bool) {
	if !g.validEquipment(id) {
		return Equipment{}, false
	}
	return g.equipment[id], true
}

// EquipmentByKey resolves an equipment key.
func (g *Graph) EquipmentByKey(key string) (EquipmentID, bool) {
	id, ok := g.equipmentKeys[key]
	return id, ok
}

// SubsystemIDs returns the ids of live subsystems in allocation order.
func (g *Graph) SubsystemIDs() []SubsystemID {
	ids := make([]SubsystemID, 0, len(g.subsystems))
	for i, s := range g.subsystems {
		if !s.deleted {
			ids = append(ids, SubsystemID(i))
		}
	}
	return ids
}

// Subsystem returns a copy of a live subsystem. Deleted or unknown ids report
// false.
func (g *Graph) Subsystem(id SubsystemID) (Subsystem, bool) {
	if id < 0 || int(id) >= len(g.subsystems) {
		return Subsystem{}, false
	}
	s := g.subsystems[id]
	if s.deleted {
		return Subsystem{}, false
	}
	return s, true
}

// SubsystemByKey resolves the key of a live subsystem.
func (g *Graph) SubsystemByKey(key string) (SubsystemID, bool) {
	id, ok := g.subsystemKeys[key]
	if !ok || g.subsystems[id].deleted {
		return 0, false
	}
	return id, true
}

// Connector returns a copy of a live connector.
func (g *Graph) Connector(id ConnectorID) (Connector, bool) {
	c, ok := g.liveConnector(id)
	if !ok {
		return Connector{}, false
	}
	return *c, true
}

// ConnectorByKey resolves the key of a live connector.
func (g *Graph) ConnectorByKey(key string) (ConnectorID, bool) {
	id, ok := g.connectorKeys[key]
	if !ok || g.connectors[id].deleted {
		return 0, false
	}
	return id, true
}

// IsConnected reports whether a live connector has any peer. Absent
// connectors are never connected.
func (g *Graph) IsConnected(id ConnectorID) bool {
	c, ok := g.liveConnector(id)
	return ok && c.IsConnected()
}

// Peers returns a copy of a connector's peer list.
func (g *Graph) Peers(id ConnectorID) []ConnectorID {
	c, ok := g.liveConnector(id)
	if !ok {
		return nil
	}
	return slices.Clone(c.peers)
}

// Linked reports whether a and b are peers of each other.
func (g *Graph) Linked(a, b ConnectorID) bool {
	ca, ok := g.liveConnector(a)
	if !ok {
		return false
	}
	return slices.Contains(ca.peers, b)
}

// HasLiveConnector reports whether any connector of the equipment node is
// connected, regardless of which subsystem or node it is linked to.
func (g *Graph) HasLiveConnector(id EquipmentID) bool {
	eq, ok := g.Equipment(id)
	if !ok {
		return false
	}
	for _, cid := range eq.Connectors {
		if g.IsConnected(cid) {
			return true
		}
	}
	return false
}

// HasLiveMember reports whether any member of the subsystem still has a
// connected connector anywhere in the graph.
func (g *Graph) HasLiveMember(id SubsystemID) bool {
	sys, ok := g.Subsystem(id)
	if !ok {
		return false
	}
	for _, m := range sys.Members {
		if g.HasLiveConnector(m) {
			return true
		}
	}
	return false
}

// MediatesLiveLink reports whether the subsystem still carries a live
// connection: one of its own connectors is linked, or a member has a
// connected connector anywhere in the graph.
func (g *Graph) MediatesLiveLink(id SubsystemID) bool {
	sys, ok := g.Subsystem(id)
	if !ok {
		return false
	}
	for _, cid := range sys.Connectors {
		if g.IsConnected(cid) {
			return true
		}
	}
	return g.HasLiveMember(id)
}

// SubsystemsServing returns, in ascending order, the live subsystems that
// list any of the given equipment nodes as a member or that are linked to
// one of their connectors.
func (g *Graph) SubsystemsServing(equipment []EquipmentID) []SubsystemID {
	wanted := make(map[EquipmentID]bool, len(equipment))
	for _, id := range equipment {
		wanted[id] = true
	}
	found := make(map[SubsystemID]bool)
	for i, s := range g.subsystems {
		if s.deleted {
			continue
		}
		for _, m := range s.Members {
			if wanted[m] {
				found[SubsystemID(i)] = true
				break
			}
		}
	}
	for id := range wanted {
		eq, ok := g.Equipment(id)
		if !ok {
			continue
		}
		for _, cid := range eq.Connectors {
			for _, p := range g.Peers(cid) {
				if sid, ok := g.ownerSubsystem(p); ok {
					found[sid] = true
				}
			}
		}
	}
	ids := make([]SubsystemID, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ownerSubsystem returns the live subsystem owning a connector.
func (g *Graph) ownerSubsystem(id ConnectorID) (SubsystemID, bool) {
	c, ok := g.liveConnector(id)
	if !ok || c.Owner != OwnerSubsystem {
		return 0, false
	}
	sid := SubsystemID(c.Index)
	if _, ok := g.Subsystem(sid); !ok {
		return 0, false
	}
	return sid, true
}

// ownerName returns a display name for a connector's owner.
func (g *Graph) ownerName(c *Connector) string {
	var key, name string
	switch c.Owner {
	case OwnerEquipment:
		key, name = g.equipment[c.Index].Key, g.equipment[c.Index].Name
	case OwnerSubsystem:
		key, name = g.subsystems[c.Index].Key, g.subsystems[c.Index].Name
	default:
		return c.Key
	}
	if name != "" {
		return name
	}
	return key
}

// Links returns every live link once, as (lower id, higher id) pairs in
// ascending order.
func (g *Graph) Links() [][2]ConnectorID {
	var links [][2]ConnectorID
	for i, c := range g.connectors {
		if c.deleted {
			continue
		}
		a := ConnectorID(i)
		peers := slices.Clone(c.peers)
		slices.Sort(peers)
		for _, b := range peers {
			if b > a {
				links = append(links, [2]ConnectorID{a, b})
			}
		}
	}
	return links
}
