package mediagraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testGraph() *Graph {
	return &Graph{
		Driver: "unicam",
		Model:  "imx219",
		Entities: []*Entity{
			{Name: "imx219", Function: FunctionSensor},
			{Name: "unicam-embedded", Function: FunctionCapture},
			{Name: "unicam-image", Function: FunctionCapture, DevNode: "/dev/video0"},
		},
	}
}

func TestEntityByName(t *testing.T) {
	g := testGraph()

	e := g.EntityByName("imx219")
	if assert.NotNil(t, e) {
		assert.Equal(t, FunctionSensor, e.Function)
	}
	assert.Nil(t, g.EntityByName("missing"))
}

func TestEntitiesByFunction(t *testing.T) {
	g := testGraph()

	captures := g.EntitiesByFunction(FunctionCapture)
	assert.Len(t, captures, 2)
	assert.Empty(t, g.EntitiesByFunction(FunctionProcessor))
}

func TestDefaultCapture(t *testing.T) {
	g := testGraph()

	// The first capture entity with a device node wins, even when an
	// earlier capture entity has none.
	e := g.DefaultCapture()
	if assert.NotNil(t, e) {
		assert.Equal(t, "unicam-image", e.Name)
	}

	assert.Nil(t, (&Graph{}).DefaultCapture())
}
