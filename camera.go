package camstack

import (
	"github.com/pkg/errors"

	"github.com/camstack/camstack/internal/logging"
)

var log = logging.DefaultLogger.WithTag("camstack")

type cameraState int

const (
	stateAvailable cameraState = iota
	stateAcquired
	stateConfigured
	stateRunning
	stateStopping
)

// Camera is one capture unit exposed to the application. It wraps a
// pipeline handler and drives the state machine
// Available → Acquired → Configured → Running. State-changing operations
// fail fast and leave the camera unchanged on error.
//
// All camera operations must run on a single goroutine, conventionally the
// manager's event loop.
type Camera struct {
	name    string
	handler Handler
	streams []*Stream

	state  cameraState
	active map[*Stream]bool

	requestCompleted func(*Request)
	bufferCompleted  func(*Request, *FrameBuffer)
}

// NewCamera creates a camera backed by handler, exposing the given streams.
// Pipeline handlers call this from Match and register the result with the
// manager.
func NewCamera(name string, handler Handler, streams []*Stream) *Camera {
	return &Camera{
		name:    name,
		handler: handler,
		streams: streams,
		active:  make(map[*Stream]bool),
	}
}

func (c *Camera) Name() string {
	return c.name
}

// Streams returns all streams the camera can produce.
func (c *Camera) Streams() []*Stream {
	return c.streams
}

// OnRequestCompleted sets the single consumer of completed requests.
// Setting a second consumer panics: completion events have exactly one
// receiver.
func (c *Camera) OnRequestCompleted(fn func(*Request)) {
	if c.requestCompleted != nil {
		panic("camstack: request-completed consumer already set")
	}
	c.requestCompleted = fn
}

// OnBufferCompleted sets the single consumer of per-buffer completions,
// delivered before the surrounding request completes.
func (c *Camera) OnBufferCompleted(fn func(*Request, *FrameBuffer)) {
	if c.bufferCompleted != nil {
		panic("camstack: buffer-completed consumer already set")
	}
	c.bufferCompleted = fn
}

// Acquire takes exclusive control of the camera.
func (c *Camera) Acquire() error {
	if c.state != stateAvailable {
		return ErrCameraBusy
	}
	c.state = stateAcquired
	return nil
}

// Release returns the camera to the available state. The camera must be
// stopped first.
func (c *Camera) Release() error {
	if c.state == stateRunning || c.state == stateStopping {
		return ErrCameraBusy
	}
	c.state = stateAvailable
	return nil
}

// Configure negotiates the given per-stream configurations with the
// devices. The streams present in cfgs become the camera's active streams;
// every queued request must carry one buffer for each. The accepted
// configuration, which may differ from the requested one, is written back
// to each stream.
func (c *Camera) Configure(cfgs map[*Stream]StreamConfiguration) error {
	if c.state != stateAcquired && c.state != stateConfigured {
		return ErrCameraBusy
	}
	if len(cfgs) == 0 {
		return errors.New("configuration is empty")
	}
	for stream := range cfgs {
		if !c.hasStream(stream) {
			return errors.Errorf("stream %q does not belong to camera %q",
				stream.Name(), c.name)
		}
	}

	if err := c.handler.Configure(c, cfgs); err != nil {
		return err
	}

	c.active = make(map[*Stream]bool, len(cfgs))
	for stream := range cfgs {
		c.active[stream] = true
	}
	c.state = stateConfigured
	return nil
}

// ExportFrameBuffers allocates count device-backed buffers for stream.
func (c *Camera) ExportFrameBuffers(stream *Stream, count int) ([]*FrameBuffer, error) {
	if c.state != stateConfigured {
		return nil, ErrCameraBusy
	}
	if !c.active[stream] {
		return nil, errors.Errorf("stream %q is not active", stream.Name())
	}
	return c.handler.ExportFrameBuffers(c, stream, count)
}

// Start begins capture.
func (c *Camera) Start() error {
	if c.state != stateConfigured {
		return ErrCameraBusy
	}
	if err := c.handler.Start(c); err != nil {
		return err
	}
	c.state = stateRunning
	return nil
}

// Stop halts capture and drains the request queue. Every request still in
// flight completes through the cancellation path before Stop returns; the
// camera never leaks a queued request.
func (c *Camera) Stop() error {
	if c.state != stateRunning {
		return ErrCameraNotRunning
	}
	c.state = stateStopping
	c.handler.Stop(c)
	c.state = stateConfigured

	if q := c.handler.orchestrator().queuedRequests(c); len(q) != 0 {
		log.Error("camera %q stopped with %d requests still queued",
			c.name, len(q))
	}
	return nil
}

// CreateRequest returns an empty request bound to this camera. Buffers
// must be attached before the request is queued.
func (c *Camera) CreateRequest() *Request {
	return newRequest(c)
}

// QueueRequest validates and submits a request. The request must carry
// exactly one buffer for each active stream, and the camera must be
// running.
func (c *Camera) QueueRequest(req *Request) error {
	if c.state != stateRunning {
		return ErrCameraNotRunning
	}
	if req.camera != c {
		return errors.Wrap(ErrInvalidRequest, "request belongs to another camera")
	}
	if len(req.Buffers()) != len(c.active) {
		return ErrInvalidRequest
	}
	for stream := range req.Buffers() {
		if !c.active[stream] {
			return errors.Wrapf(ErrInvalidRequest,
				"stream %q is not active", stream.Name())
		}
	}

	return c.handler.orchestrator().queueRequest(c, req, c.handler)
}

func (c *Camera) hasStream(stream *Stream) bool {
	for _, s := range c.streams {
		if s == stream {
			return true
		}
	}
	return false
}

func (c *Camera) stopping() bool {
	return c.state == stateStopping
}

func (c *Camera) notifyBufferCompleted(req *Request, buffer *FrameBuffer) {
	if c.bufferCompleted != nil {
		c.bufferCompleted(req, buffer)
	}
}

func (c *Camera) notifyRequestCompleted(req *Request) {
	if c.requestCompleted != nil {
		c.requestCompleted(req)
	}
}
