// Package models defines the value types shared by the remediation pipeline.
package models

import (
	"fmt"
	"strings"
)

// Category classifies an equipment node.
type Category string

const (
	CategoryElectricalEquipment Category = "electrical_equipment" // panels, switchboards
	CategoryMechanicalEquipment Category = "mechanical_equipment"
	CategoryPlumbingFixture     Category = "plumbing_fixture"
	CategoryGeneric             Category = "generic"
)

// SubsystemKind identifies the distribution system a subsystem belongs to.
type SubsystemKind string

const (
	KindCircuit SubsystemKind = "circuit" // electrical circuit
	KindPiping  SubsystemKind = "piping"
	KindDuct    SubsystemKind = "duct"
)

// AllKinds lists every subsystem kind in a stable order.
var AllKinds = []SubsystemKind{KindCircuit, KindPiping, KindDuct}

// Parameter names the host maintains on equipment nodes.
const (
	ParamTotalConnectedLoad = "Total Connected Load"
	ParamPanelCapacity      = "Panel Capacity"
)

// ParseCategory normalizes a category string. Empty input maps to CategoryGeneric.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CategoryGeneric, nil
	case CategoryElectricalEquipment, CategoryMechanicalEquipment, CategoryPlumbingFixture, CategoryGeneric:
		return c, nil
	default:
		return "", fmt.Errorf("unknown equipment category %q", s)
	}
}

// ParseSubsystemKind normalizes a subsystem kind string.
func ParseSubsystemKind(s string) (SubsystemKind, error) {
	switch k := SubsystemKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCircuit, KindPiping, KindDuct:
		return k, nil
	default:
		return "", fmt.Errorf("unknown subsystem kind %q", s)
	}
}

// ParseKinds parses a list of kind names, returning AllKinds for an empty list.
func ParseKinds(names []string) ([]SubsystemKind, error) {
	if len(names) == 0 {
		return append([]SubsystemKind(nil), AllKinds...), nil
	}
	kinds := make([]SubsystemKind, 0, len(names))
	seen := make(map[SubsystemKind]bool, len(names))
	for _, n := range names {
		k, err := ParseSubsystemKind(n)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			kinds = append(kinds, k)
			seen[k] = true
		}
	}
	return kinds, nil
}
