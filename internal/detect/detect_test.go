package detect

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/mepfix/internal/graph"
	"github.com/raphaelgruber/mepfix/internal/models"
)

func TestViolates(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]float64
		want   bool
	}{
		{"over capacity", map[string]float64{models.ParamTotalConnectedLoad: 120, models.ParamPanelCapacity: 100}, true},
		{"at capacity", map[string]float64{models.ParamTotalConnectedLoad: 100, models.ParamPanelCapacity: 100}, false},
		{"under capacity", map[string]float64{models.ParamTotalConnectedLoad: 10, models.ParamPanelCapacity: 100}, false},
		{"missing capacity", map[string]float64{models.ParamTotalConnectedLoad: 0.5}, true},
		{"missing load", map[string]float64{models.ParamPanelCapacity: 100}, false},
		{"nothing declared", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New("t", nil)
			id, err := g.AddEquipment("P", "", models.CategoryElectricalEquipment, tt.params)
			require.NoError(t, err)
			eq, _ := g.Equipment(id)
			assert.Equal(t, tt.want, Violates(eq))
		})
	}
}

func sampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("t", nil)
	add := func(key string, category models.Category, load, capacity float64) {
		_, err := g.AddEquipment(key, "", category, map[string]float64{
			models.ParamTotalConnectedLoad: load,
			models.ParamPanelCapacity:      capacity,
		})
		require.NoError(t, err)
	}
	add("LP-1", models.CategoryElectricalEquipment, 120, 100)
	add("LP-2", models.CategoryElectricalEquipment, 100, 100)
	add("AHU-1", models.CategoryMechanicalEquipment, 500, 0)
	add("LP-3", models.CategoryElectricalEquipment, 90, 40)
	return g
}

func TestScan(t *testing.T) {
	g := sampleGraph(t)
	before := g.Stats()

	got := slices.Collect(New(models.CategoryElectricalEquipment).Scan(g))

	require.Len(t, got, 2)
	assert.Equal(t, "LP-1", got[0].Equipment)
	assert.Equal(t, "LP-1", got[0].Name)
	assert.Equal(t, 20.0, got[0].Excess())
	assert.Equal(t, "LP-3", got[1].Equipment)
	assert.Equal(t, before, g.Stats())
}

func TestScan_ZeroValueMonitorsElectrical(t *testing.T) {
	var d Detector
	assert.Len(t, slices.Collect(d.Scan(sampleGraph(t))), 2)
}

func TestScan_OtherCategory(t *testing.T) {
	got := slices.Collect(New(models.CategoryMechanicalEquipment).Scan(sampleGraph(t)))
	require.Len(t, got, 1)
	assert.Equal(t, "AHU-1", got[0].Equipment)
}

func TestScan_StopsEarly(t *testing.T) {
	var seen int
	for range New("").Scan(sampleGraph(t)) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestScan_Empty(t *testing.T) {
	assert.Empty(t, slices.Collect(New("").Scan(graph.New("empty", nil))))
}

func TestMonitored(t *testing.T) {
	g := sampleGraph(t)
	ids := New("").Monitored(g)
	assert.Len(t, ids, 3)
}
