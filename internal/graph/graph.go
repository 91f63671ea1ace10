// Package graph holds the connector graph of one open model document.
//
// Elements live in arenas indexed by typed ids. Peer links are stored as id
// lists on both connectors, so disconnecting and deleting are index
// operations and never leave a pointer dangling. Deleted subsystems and their
// connectors are tombstoned: every lookup treats them as absent.
//
// A Graph is not safe for concurrent use; one document is processed at a time.
package graph

import (
	"fmt"
	"math"
	"slices"

	"github.com/raphaelgruber/mepfix/internal/models"
)

// EquipmentID indexes the equipment arena.
type EquipmentID int

// SubsystemID indexes the subsystem arena.
type SubsystemID int

// ConnectorID indexes the connector arena.
type ConnectorID int

// OwnerKind tells which arena owns a connector.
type OwnerKind uint8

const (
	OwnerEquipment OwnerKind = iota + 1
	OwnerSubsystem
)

// Connector is an attachment point owned by an equipment node or by a
// subsystem's connector manager.
type Connector struct {
	Key    string
	Owner  OwnerKind
	Index  int  // EquipmentID or SubsystemID depending on Owner
	Locked bool // host refuses to change this connector's links

	peers   []ConnectorID
	deleted bool
}

// IsConnected reports whether the connector has at least one peer.
func (c Connector) IsConnected() bool {
	return len(c.peers) > 0
}

// Equipment is a physical node such as a panel.
type Equipment struct {
	Key        string
	Name       string
	Category   models.Category
	Parameters map[string]float64
	Connectors []ConnectorID
}

// Param returns a parameter value, resolving a missing parameter to 0.
func (e Equipment) Param(name string) float64 {
	return e.Parameters[name]
}

// Subsystem is a distribution system (circuit, piping or duct system). Its
// Connectors form the connector manager; Members is the equipment it serves.
type Subsystem struct {
	Key        string
	Name       string
	Kind       models.SubsystemKind
	Load       float64
	Pinned     bool
	Connectors []ConnectorID
	Members    []EquipmentID

	deleted bool
}

// Graph is the arena of one document's equipment, subsystems and connectors.
type Graph struct {
	Name   string
	Phases []string

	equipment  []Equipment
	subsystems []Subsystem
	connectors []Connector

	equipmentKeys map[string]EquipmentID
	subsystemKeys map[string]SubsystemID
	connectorKeys map[string]ConnectorID
}

// New creates an empty graph.
func New(name string, phases []string) *Graph {
	return &Graph{
		Name:          name,
		Phases:        append([]string(nil), phases...),
		equipmentKeys: make(map[string]EquipmentID),
		subsystemKeys: make(map[string]SubsystemID),
		connectorKeys: make(map[string]ConnectorID),
	}
}

// AddEquipment allocates an equipment node. Parameters must be finite and
// non-negative.
func (g *Graph) AddEquipment(key, name string, category models.Category, params map[string]float64) (EquipmentID, error) {
	if _, exists := g.equipmentKeys[key]; exists {
		return 0, fmt.Errorf("equipment %q: %w", key, ErrDuplicateKey)
	}
	copied := make(map[string]float64, len(params))
	for k, v := range params {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("equipment %q parameter %q: invalid value %v", key, k, v)
		}
		copied[k] = v
	}
	id := EquipmentID(len(g.equipment))
	g.equipment = append(g.equipment, Equipment{
		Key:        key,
		Name:       name,
		Category:   category,
		Parameters: copied,
	})
	g.equipmentKeys[key] = id
	return id, nil
}

// AddSubsystem allocates a subsystem with an empty connector manager.
func (g *Graph) AddSubsystem(key, name string, kind models.SubsystemKind, load float64, pinned bool) (SubsystemID, error) {
	if _, exists := g.subsystemKeys[key]; exists {
		return 0, fmt.Errorf("subsystem %q: %w", key, ErrDuplicateKey)
	}
	if load < 0 || math.IsNaN(load) || math.IsInf(load, 0) {
		return 0, fmt.Errorf("subsystem %q: invalid load %v", key, load)
	}
	id := SubsystemID(len(g.subsystems))
	g.subsystems = append(g.subsystems, Subsystem{
		Key:    key,
		Name:   name,
		Kind:   kind,
		Load:   load,
		Pinned: pinned,
	})
	g.subsystemKeys[key] = id
	return id, nil
}

// AddEquipmentConnector adds a connector owned by an equipment node.
func (g *Graph) AddEquipmentConnector(owner EquipmentID, key string, locked bool) (ConnectorID, error) {
	if !g.validEquipment(owner) {
		return 0, fmt.Errorf("equipment %d: %w", owner, ErrNotFound)
	}
	id, err := g.addConnector(key, OwnerEquipment, int(owner), locked)
	if err != nil {
		return 0, err
	}
	g.equipment[owner].Connectors = append(g.equipment[owner].Connectors, id)
	return id, nil
}

// AddSubsystemConnector adds a connector to a subsystem's connector manager.
func (g *Graph) AddSubsystemConnector(owner SubsystemID, key string, locked bool) (ConnectorID, error) {
	if _, ok := g.Subsystem(owner); !ok {
		return 0, fmt.Errorf("subsystem %d: %w", owner, ErrNotFound)
	}
	id, err := g.addConnector(key, OwnerSubsystem, int(owner), locked)
	if err != nil {
		return 0, err
	}
	g.subsystems[owner].Connectors = append(g.subsystems[owner].Connectors, id)
	return id, nil
}

func (g *Graph) addConnector(key string, owner OwnerKind, index int, locked bool) (ConnectorID, error) {
	if _, exists := g.connectorKeys[key]; exists {
		return 0, fmt.Errorf("connector %q: %w", key, ErrDuplicateKey)
	}
	id := ConnectorID(len(g.connectors))
	g.connectors = append(g.connectors, Connector{
		Key:    key,
		Owner:  owner,
		Index:  index,
		Locked: locked,
	})
	g.connectorKeys[key] = id
	return id, nil
}

// Connect links two connectors in both directions. Linking an already linked
// pair is a no-op.
func (g *Graph) Connect(a, b ConnectorID) error {
	if a == b {
		return fmt.Errorf("connector %d: %w", a, ErrSelfLink)
	}
	ca, okA := g.liveConnector(a)
	cb, okB := g.liveConnector(b)
	if !okA || !okB {
		return fmt.Errorf("link %d-%d: %w", a, b, ErrNotFound)
	}
	if slices.Contains(ca.peers, b) {
		return nil
	}
	ca.peers = append(ca.peers, b)
	cb.peers = append(cb.peers, a)
	return nil
}

// SetMembers replaces the recorded membership of a subsystem.
func (g *Graph) SetMembers(id SubsystemID, members []EquipmentID) error {
	if _, ok := g.Subsystem(id); !ok {
		return fmt.Errorf("subsystem %d: %w", id, ErrNotFound)
	}
	out := make([]EquipmentID, 0, len(members))
	seen := make(map[EquipmentID]bool, len(members))
	for _, m := range members {
		if !g.validEquipment(m) {
			return fmt.Errorf("subsystem %q member %d: %w", g.subsystems[id].Key, m, ErrNotFound)
		}
		if !seen[m] {
			out = append(out, m)
			seen[m] = true
		}
	}
	g.subsystems[id].Members = out
	return nil
}

// DeriveMembers computes membership from the current links: every equipment
// node owning a connector peered with one of the subsystem's connectors.
func (g *Graph) DeriveMembers(id SubsystemID) []EquipmentID {
	sys, ok := g.Subsystem(id)
	if !ok {
		return nil
	}
	var members []EquipmentID
	seen := make(map[EquipmentID]bool)
	for _, cid := range sys.Connectors {
		for _, p := range g.connectors[cid].peers {
			peer := g.connectors[p]
			if peer.deleted || peer.Owner != OwnerEquipment {
				continue
			}
			eq := EquipmentID(peer.Index)
			if !seen[eq] {
				members = append(members, eq)
				seen[eq] = true
			}
		}
	}
	return members
}

func (g *Graph) validEquipment(id EquipmentID) bool {
	return id >= 0 && int(id) < len(g.equipment)
}

func (g *Graph) liveConnector(id ConnectorID) (*Connector, bool) {
	if id < 0 || int(id) >= len(g.connectors) {
		return nil, false
	}
	c := &g.connectors[id]
	if c.deleted {
		return nil, false
	}
	return c, true
}
