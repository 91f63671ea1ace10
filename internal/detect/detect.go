// Package detect finds equipment whose connected load exceeds its capacity.
package detect

import (
	"iter"

	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
)

// Detector scans one equipment category. The zero value monitors
// electrical equipment.
type Detector struct {
	Category models.Category
}

// New returns a detector for the given category.
func New(category models.Category) *Detector {
	return &Detector{Category: category}
}

func (d *Detector) category() models.Category {
	if d == nil || d.Category == "" {
		return models.CategoryElectricalEquipment
	}
	return d.Category
}

// Violates reports whether load is strictly greater than capacity. Missing
// parameters count as 0, so any positive load on a node without a declared
// capacity is a violation.
func Violates(eq graph.Equipment) bool {
	return eq.Param(models.ParamTotalConnectedLoad) > eq.Param(models.ParamPanelCapacity)
}

// Scan lazily yields one Mismatch per monitored equipment node in violation,
// in allocation order. It never mutates g.
func (d *Detector) Scan(g *graph.Graph) iter.Seq[models.Mismatch] {
	category := d.category()
	return func(yield func(models.Mismatch) bool) {
		for _, id := range g.EquipmentIDs() {
			eq, ok := g.Equipment(id)
			if !ok || eq.Category != category || !Violates(eq) {
				continue
			}
			m := models.Mismatch{
				Equipment: eq.Key,
				Name:      eq.Name,
				TotalLoad: eq.Param(models.ParamTotalConnectedLoad),
				Capacity:  eq.Param(models.ParamPanelCapacity),
			}
			if m.Name == "" {
				m.Name = eq.Key
			}
			if !yield(m) {
				return
			}
		}
	}
}

// Monitored returns every equipment node of the monitored category.
func (d *Detector) Monitored(g *graph.Graph) []graph.EquipmentID {
	category := d.category()
	var ids []graph.EquipmentID
	for _, id := range g.EquipmentIDs() {
		if eq, ok := g.Equipment(id); ok && eq.Category == category {
			ids = append(ids, id)
		}
	}
	return ids
}
