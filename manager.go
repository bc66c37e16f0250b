package camstack

import (
	"github.com/pkg/errors"

	"github.com/camstack/camstack/internal/event"
	"github.com/camstack/camstack/internal/mediagraph"
)

// CameraManager owns the event loop and the set of cameras discovered by
// its pipeline handlers. Handlers are listed explicitly at construction;
// there is no ambient registry.
type CameraManager struct {
	loop      *event.Loop
	factories []HandlerFactory
	pipeline  *Pipeline

	handlers []Handler
	cameras  []*Camera
}

// NewCameraManager creates a manager that tries the given handler
// factories, in order, against every media graph added to it.
func NewCameraManager(factories []HandlerFactory) (*CameraManager, error) {
	if len(factories) == 0 {
		return nil, errors.New("no pipeline handler factories given")
	}
	loop, err := event.NewLoop()
	if err != nil {
		return nil, errors.Wrap(err, "create event loop")
	}
	return &CameraManager{
		loop:      loop,
		factories: factories,
		pipeline:  NewPipeline(),
	}, nil
}

// Loop returns the manager's event loop. Device readiness notifiers and
// all camera operations run on it.
func (m *CameraManager) Loop() *event.Loop {
	return m.loop
}

// AddGraph offers a media graph to the handler factories. The first
// handler whose Match claims the graph keeps it; the cameras it registered
// during Match become visible through Cameras. Returns false when no
// handler wants the graph.
func (m *CameraManager) AddGraph(graph *mediagraph.Graph) bool {
	for _, f := range m.factories {
		h := f.New(m)
		if h.Match(graph) {
			log.Info("graph %q claimed by pipeline handler %q",
				graph.Driver, h.Name())
			m.handlers = append(m.handlers, h)
			return true
		}
	}
	log.Debug("no pipeline handler for graph %q", graph.Driver)
	return false
}

// AddCamera registers a camera with the manager. Pipeline handlers call
// this from Match for each camera they expose.
func (m *CameraManager) AddCamera(cam *Camera) {
	m.cameras = append(m.cameras, cam)
}

// Pipeline returns the request orchestrator shared by all handlers under
// this manager. Handler implementations embed it to satisfy the Handler
// interface.
func (m *CameraManager) Pipeline() *Pipeline {
	return m.pipeline
}

// Cameras returns all registered cameras in registration order.
func (m *CameraManager) Cameras() []*Camera {
	return m.cameras
}

// CameraByName returns the named camera, or nil.
func (m *CameraManager) CameraByName(name string) *Camera {
	for _, cam := range m.cameras {
		if cam.Name() == name {
			return cam
		}
	}
	return nil
}

// Run drives the event loop until Stop is called.
func (m *CameraManager) Run() {
	m.loop.Run()
}

// Stop makes Run return. It may be called from any goroutine, including
// completion callbacks, and repeated calls are no-ops.
func (m *CameraManager) Stop() {
	m.loop.Stop()
}

// Close releases the event loop. All cameras must be stopped first.
func (m *CameraManager) Close() error {
	return m.loop.Close()
}
