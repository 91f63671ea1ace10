// Package parser reads and writes model documents.
//
// A model document is YAML: equipment with parameters and connectors,
// subsystems with their connector managers and membership, and the links
// between connectors.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
)

// DocumentFile is the on-disk layout of a model document.
type DocumentFile struct {
	Name      string          `yaml:"name"`
	Phases    []string        `yaml:"phases,omitempty"`
	Equipment []EquipmentFile `yaml:"equipment,omitempty"`
	Systems   []SystemFile    `yaml:"systems,omitempty"`
	Links     [][]string      `yaml:"links,omitempty"`
}

// EquipmentFile is one equipment entry.
type EquipmentFile struct {
	ID         string             `yaml:"id"`
	Name       string             `yaml:"name,omitempty"`
	Category   string             `yaml:"category,omitempty"`
	Parameters map[string]float64 `yaml:"parameters,omitempty"`
	Connectors []ConnectorFile    `yaml:"connectors,omitempty"`
}

// SystemFile is one subsystem entry. A nil Members list means membership is
// derived from the links.
type SystemFile struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name,omitempty"`
	Kind       string          `yaml:"kind"`
	Load       float64         `yaml:"load,omitempty"`
	Pinned     bool            `yaml:"pinned,omitempty"`
	Connectors []ConnectorFile `yaml:"connectors,omitempty"`
	Members    []string        `yaml:"members"`
}

// ConnectorFile is one connector entry.
type ConnectorFile struct {
	ID     string `yaml:"id"`
	Locked bool   `yaml:"locked,omitempty"`
}

// ErrInvalidDocument wraps every validation failure found while parsing.
var ErrInvalidDocument = errors.New("invalid model document")

// Parse decodes a model document into a graph. Unknown fields are rejected.
func Parse(data []byte) (*graph.Graph, error) {
	var doc DocumentFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	g, err := Build(&doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return g, nil
}

// Build turns a decoded document into a graph.
func Build(doc *DocumentFile) (*graph.Graph, error) {
	g := graph.New(doc.Name, doc.Phases)

	for _, e := range doc.Equipment {
		if e.ID == "" {
			return nil, errors.New("equipment without id")
		}
		category, err := models.ParseCategory(e.Category)
		if err != nil {
			return nil, fmt.Errorf("equipment %q: %w", e.ID, err)
		}
		id, err := g.AddEquipment(e.ID, e.Name, category, e.Parameters)
		if err != nil {
			return nil, err
		}
		for _, c := range e.Connectors {
			if _, err := g.AddEquipmentConnector(id, c.ID, c.Locked); err != nil {
				return nil, err
			}
		}
	}

	systems := make([]graph.SubsystemID, len(doc.Systems))
	for i, s := range doc.Systems {
		if s.ID == "" {
			return nil, errors.New("subsystem without id")
		}
		kind, err := models.ParseSubsystemKind(s.Kind)
		if err != nil {
			return nil, fmt.Errorf("subsystem %q: %w", s.ID, err)
		}
		id, err := g.AddSubsystem(s.ID, s.Name, kind, s.Load, s.Pinned)
		if err != nil {
			return nil, err
		}
		for _, c := range s.Connectors {
			if _, err := g.AddSubsystemConnector(id, c.ID, c.Locked); err != nil {
				return nil, err
			}
		}
		systems[i] = id
	}

	for _, link := range doc.Links {
		if len(link) != 2 {
			return nil, fmt.Errorf("link %v: want exactly two connector ids", link)
		}
		a, okA := g.ConnectorByKey(link[0])
		b, okB := g.ConnectorByKey(link[1])
		if !okA || !okB {
			return nil, fmt.Errorf("link %s-%s: %w", link[0], link[1], graph.ErrNotFound)
		}
		if err := g.Connect(a, b); err != nil {
			return nil, err
		}
	}

	for i, s := range doc.Systems {
		if s.Members == nil {
			if err := g.SetMembers(systems[i], g.DeriveMembers(systems[i])); err != nil {
				return nil, err
			}
			continue
		}
		members := make([]graph.EquipmentID, 0, len(s.Members))
		for _, key := range s.Members {
			eq, ok := g.EquipmentByKey(key)
			if !ok {
				return nil, fmt.Errorf("subsystem %q member %q: %w", s.ID, key, graph.ErrNotFound)
			}
			members = append(members, eq)
		}
		if err := g.SetMembers(systems[i], members); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Flatten converts a graph back into its document layout. Deleted
// subsystems and their connectors are omitted; membership is always written.
func Flatten(g *graph.Graph) *DocumentFile {
	doc := &DocumentFile{Name: g.Name, Phases: g.Phases}

	for _, id := range g.EquipmentIDs() {
		eq, _ := g.Equipment(id)
		doc.Equipment = append(doc.Equipment, EquipmentFile{
			ID:         eq.Key,
			Name:       eq.Name,
			Category:   string(eq.Category),
			Parameters: eq.Parameters,
			Connectors: connectorFiles(g, eq.Connectors),
		})
	}

	for _, id := range g.SubsystemIDs() {
		sys, _ := g.Subsystem(id)
		members := make([]string, 0, len(sys.Members))
		for _, m := range sys.Members {
			eq, _ := g.Equipment(m)
			members = append(members, eq.Key)
		}
		doc.Systems = append(doc.Systems, SystemFile{
			ID:         sys.Key,
			Name:       sys.Name,
			Kind:       string(sys.Kind),
			Load:       sys.Load,
			Pinned:     sys.Pinned,
			Connectors: connectorFiles(g, sys.Connectors),
			Members:    members,
		})
	}

	for _, link := range g.Links() {
		a, _ := g.Connector(link[0])
		b, _ := g.Connector(link[1])
		doc.Links = append(doc.Links, []string{a.Key, b.Key})
	}
	return doc
}

// Encode writes a graph as a model document. Output is deterministic: the
// same graph state always yields the same bytes.
func Encode(g *graph.Graph) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Flatten(g)); err != nil {
		return nil, fmt.Errorf("encode %q: %w", g.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func connectorFiles(g *graph.Graph, ids []graph.ConnectorID) []ConnectorFile {
	var out []ConnectorFile
	for _, id := range ids {
		c, ok := g.Connector(id)
		if !ok {
			continue
		}
		out = append(out, ConnectorFile{ID: c.Key, Locked: c.Locked})
	}
	return out
}
