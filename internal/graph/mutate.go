package graph

import (
	"fmt"
	"slices"

	"github.com/raphaelgruber/mepfix/internal/models"
)

// Disconnect severs the link between a and b on both sides. Severing an
// equipment<->subsystem link raises one warning advisory; links between two
// equipment nodes or two subsystems raise none.
//
// A pair that is not linked, or where either side has been deleted, is a
// no-op. Locked connectors fail with ErrLocked and are left untouched.
// Equipment on either side has its Total Connected Load recalculated.
func (g *Graph) Disconnect(a, b ConnectorID) ([]models.Advisory, error) {
	if !g.allocatedConnector(a) || !g.allocatedConnector(b) {
		return nil, fmt.Errorf("disconnect %d-%d: %w", a, b, ErrNotFound)
	}
	ca, okA := g.liveConnector(a)
	cb, okB := g.liveConnector(b)
	if !okA || !okB {
		return nil, nil
	}
	if !slices.Contains(ca.peers, b) {
		// Repair a one-sided link rather than leave the graph inconsistent.
		cb.peers = slices.DeleteFunc(cb.peers, func(p ConnectorID) bool { return p == a })
		return nil, nil
	}
	if ca.Locked || cb.Locked {
		return nil, fmt.Errorf("disconnect %s from %s: %w", ca.Key, cb.Key, ErrLocked)
	}

	ca.peers = slices.DeleteFunc(ca.peers, func(p ConnectorID) bool { return p == b })
	cb.peers = slices.DeleteFunc(cb.peers, func(p ConnectorID) bool { return p == a })

	var advisories []models.Advisory
	if (ca.Owner == OwnerEquipment) != (cb.Owner == OwnerEquipment) {
		advisories = append(advisories, models.Advisory{
			Severity: models.SeverityWarning,
			Element:  ca.Key,
			Message:  fmt.Sprintf("%s disconnected from %s; element has an open connector", g.ownerName(ca), g.ownerName(cb)),
		})
	}
	g.touchEquipment(ca)
	g.touchEquipment(cb)
	return advisories, nil
}

// DeleteSubsystem removes a subsystem and detaches every connector it owns.
// Deleting an already deleted subsystem is a no-op. A pinned subsystem is
// not deleted: the host raises a fatal advisory and ErrPinned. A subsystem
// with a remaining link on a locked connector fails with ErrLocked and is
// left untouched.
func (g *Graph) DeleteSubsystem(id SubsystemID) ([]models.Advisory, error) {
	if id < 0 || int(id) >= len(g.subsystems) {
		return nil, fmt.Errorf("delete subsystem %d: %w", id, ErrNotFound)
	}
	sys := &g.subsystems[id]
	if sys.deleted {
		return nil, nil
	}
	if sys.Pinned {
		return []models.Advisory{{
			Severity: models.SeverityError,
			Element:  sys.Key,
			Message:  "pinned subsystem cannot be deleted",
		}}, fmt.Errorf("delete %s: %w", sys.Key, ErrPinned)
	}
	for _, cid := range sys.Connectors {
		c := &g.connectors[cid]
		for _, p := range c.peers {
			if peer := &g.connectors[p]; c.Locked || peer.Locked {
				return nil, fmt.Errorf("delete %s: link %s-%s: %w", sys.Key, c.Key, peer.Key, ErrLocked)
			}
		}
	}

	var touched []EquipmentID
	for _, cid := range sys.Connectors {
		c := &g.connectors[cid]
		for _, p := range c.peers {
			peer := &g.connectors[p]
			peer.peers = slices.DeleteFunc(peer.peers, func(q ConnectorID) bool { return q == cid })
			if peer.Owner == OwnerEquipment {
				touched = append(touched, EquipmentID(peer.Index))
			}
		}
		c.peers = nil
		c.deleted = true
	}
	sys.deleted = true
	for _, eq := range touched {
		g.recalcLoad(eq)
	}
	return nil, nil
}

func (g *Graph) allocatedConnector(id ConnectorID) bool {
	return id >= 0 && int(id) < len(g.connectors)
}

func (g *Graph) touchEquipment(c *Connector) {
	if c.Owner == OwnerEquipment {
		g.recalcLoad(EquipmentID(c.Index))
	}
}

// recalcLoad sets Total Connected Load to the summed load of the distinct
// subsystems the equipment node is still connected to.
func (g *Graph) recalcLoad(id EquipmentID) {
	eq := &g.equipment[id]
	seen := make(map[SubsystemID]bool)
	var total float64
	for _, cid := range eq.Connectors {
		for _, p := range g.connectors[cid].peers {
			sid, ok := g.ownerSubsystem(p)
			if !ok || seen[sid] {
				continue
			}
			seen[sid] = true
			total += g.subsystems[sid].Load
		}
	}
	eq.Parameters[models.ParamTotalConnectedLoad] = total
}
