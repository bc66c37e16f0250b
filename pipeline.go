package camstack

import (
	"github.com/pkg/errors"

	"github.com/camstack/camstack/internal/mediagraph"
)

// Handler is the pipeline-handler protocol. A handler binds one or more
// video devices to a camera, translates per-stream buffer completions into
// whole-request completions through the embedded Pipeline, and programs the
// hardware pipeline for each queued request.
//
// Implementations embed *Pipeline to inherit the request orchestration.
type Handler interface {
	// Name identifies the handler in logs and in the factory registry.
	Name() string

	// Match inspects a media graph and, when the handler recognises the
	// hardware, registers cameras with the manager. It returns true when
	// the graph was claimed.
	Match(graph *mediagraph.Graph) bool

	// Configure applies the stream configurations to the devices backing
	// the camera. The accepted configuration is written back to each
	// stream.
	Configure(cam *Camera, cfgs map[*Stream]StreamConfiguration) error

	// ExportFrameBuffers allocates count device-backed buffers suitable
	// for the given stream.
	ExportFrameBuffers(cam *Camera, stream *Stream, count int) ([]*FrameBuffer, error)

	// Start begins capture on the camera's devices.
	Start(cam *Camera) error

	// Stop halts capture. All in-flight buffers complete as cancelled
	// before Stop returns, which drains the request queue.
	Stop(cam *Camera)

	// QueueRequestDevice submits the request's buffers to the devices.
	QueueRequestDevice(cam *Camera, req *Request) error

	orchestrator() *Pipeline
}

// HandlerFactory constructs one kind of pipeline handler. The set of
// factories is assembled explicitly at program start and handed to the
// camera manager; there is no ambient registration.
type HandlerFactory struct {
	Name string
	New  func(mgr *CameraManager) Handler
}

// Pipeline is the request/completion orchestrator embedded in every
// pipeline handler. It owns the per-camera FIFO of in-flight requests and
// aggregates per-stream buffer completions into request completions.
//
// All methods run on the camera's event loop thread.
type Pipeline struct {
	queued map[*Camera][]*Request
}

// NewPipeline returns an orchestrator ready to be embedded in a handler.
func NewPipeline() *Pipeline {
	return &Pipeline{queued: make(map[*Camera][]*Request)}
}

func (p *Pipeline) orchestrator() *Pipeline { return p }

// queueRequest appends req to the camera's FIFO and submits it to the
// handler. On submission failure the request is removed again and the
// queue is left as before the call.
func (p *Pipeline) queueRequest(cam *Camera, req *Request, h Handler) error {
	p.queued[cam] = append(p.queued[cam], req)

	if err := h.QueueRequestDevice(cam, req); err != nil {
		q := p.queued[cam]
		p.queued[cam] = q[:len(q)-1]
		return err
	}
	return nil
}

// CompleteBuffer records that buffer, queued as part of req, has completed
// on its stream. It returns true when req has no pending buffers left, at
// which point the handler shall call CompleteRequest.
//
// Within a single stream completions must arrive in submission order; a
// buffer completing while an earlier request still has the same stream
// pending is reported as a protocol violation. Completions may interleave
// freely across different streams.
func (p *Pipeline) CompleteBuffer(cam *Camera, req *Request, buffer *FrameBuffer) (bool, error) {
	stream := req.streamOf(buffer)
	if stream == nil {
		return false, errors.Wrapf(ErrProtocolViolation,
			"buffer does not belong to %s", req)
	}

	// Cancellations arrive in whatever order the device drains its queue,
	// so the per-stream ordering rule is suspended while the camera stops.
	if !cam.stopping() {
		for _, earlier := range p.queued[cam] {
			if earlier == req {
				break
			}
			if b := earlier.Buffer(stream); b != nil && earlier.streamOf(b) != nil {
				return false, errors.Wrapf(ErrProtocolViolation,
					"stream %q completed out of order: %s still pending",
					stream.Name(), earlier)
			}
		}
	}

	cam.notifyBufferCompleted(req, buffer)
	return req.completeBuffer(buffer)
}

// CompleteRequest marks req complete and delivers finished requests to the
// application in FIFO order. The handler may call it on any request whose
// buffers have all completed; delivery is deferred until every older
// request has completed too.
func (p *Pipeline) CompleteRequest(cam *Camera, req *Request) {
	req.complete(cam.stopping())

	// Pop before notifying: the callback may queue a new request, which
	// must land behind whatever is still in flight.
	for {
		q := p.queued[cam]
		if len(q) == 0 || q[0].Status() == RequestPending {
			break
		}
		head := q[0]
		p.queued[cam] = q[1:]
		if head.HasPendingBuffers() {
			log.Error("%s delivered with pending buffers", head)
		}
		cam.notifyRequestCompleted(head)
	}
}

// RequestForBuffer returns the in-flight request buffer was queued with,
// or nil when no queued request is waiting on it. Handlers use it to map
// a device completion back to its request.
func (p *Pipeline) RequestForBuffer(cam *Camera, buffer *FrameBuffer) *Request {
	for _, req := range p.queued[cam] {
		if req.streamOf(buffer) != nil {
			return req
		}
	}
	return nil
}

// queuedRequests returns the camera's in-flight FIFO, oldest first.
func (p *Pipeline) queuedRequests(cam *Camera) []*Request {
	return p.queued[cam]
}
