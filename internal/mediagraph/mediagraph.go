// Package mediagraph models the topology a media device exposes: entities
// connected by pads and links. Pipeline handlers inspect a Graph to decide
// whether they can drive the hardware behind it.
//
// The graph is immutable once built. Handlers hold on to the entities they
// matched and open the device nodes those entities advertise.
package mediagraph

// Function identifies the role an entity plays in the graph.
type Function int

const (
	FunctionUnknown Function = iota
	FunctionSensor
	FunctionCapture
	FunctionOutput
	FunctionProcessor
)

func (f Function) String() string {
	switch f {
	case FunctionSensor:
		return "sensor"
	case FunctionCapture:
		return "capture"
	case FunctionOutput:
		return "output"
	case FunctionProcessor:
		return "processor"
	default:
		return "unknown"
	}
}

// PadDirection tells whether a pad consumes or produces data.
type PadDirection int

const (
	PadSink PadDirection = iota
	PadSource
)

// Pad is one connection point on an entity.
type Pad struct {
	Index     int
	Direction PadDirection
}

// Entity is a node in the media graph: a sensor, a DMA engine, a scaler.
// DevNode is the /dev path backing the entity, empty when the entity has
// no device node of its own.
type Entity struct {
	Name     string
	Function Function
	DevNode  string
	Pads     []Pad
}

// Graph is one media device's topology.
type Graph struct {
	// Driver is the kernel driver name, the usual primary match key.
	Driver string
	// Model is the device model string as reported by the kernel.
	Model    string
	Entities []*Entity
}

// EntityByName returns the named entity, or nil if the graph has none.
func (g *Graph) EntityByName(name string) *Entity {
	for _, e := range g.Entities {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// EntitiesByFunction returns all entities with the given function, in
// graph order.
func (g *Graph) EntitiesByFunction(fn Function) []*Entity {
	var out []*Entity
	for _, e := range g.Entities {
		if e.Function == fn {
			out = append(out, e)
		}
	}
	return out
}

// DefaultCapture returns the first capture entity with a device node, or
// nil. Single-device graphs like UVC cameras have exactly one.
func (g *Graph) DefaultCapture() *Entity {
	for _, e := range g.Entities {
		if e.Function == FunctionCapture && e.DevNode != "" {
			return e
		}
	}
	return nil
}
