package camstack

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RequestStatus describes the lifecycle state of a capture request.
type RequestStatus int

const (
	// RequestPending means the request has buffers still awaiting
	// completion.
	RequestPending RequestStatus = iota
	// RequestComplete means every buffer in the request has completed.
	RequestComplete
	// RequestCancelled means the request was drained by stopping the
	// camera before all of its buffers completed normally.
	RequestCancelled
)

func (s RequestStatus) String() string {
	switch s {
	case RequestPending:
		return "pending"
	case RequestComplete:
		return "complete"
	case RequestCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request is one application-issued unit of capture work, spanning at most
// one frame buffer per stream. The application creates it through
// Camera.CreateRequest, attaches buffers, and queues it; the request comes
// back through the request-completed callback once every attached stream
// has delivered its buffer.
//
// The request is owned by its creator. The orchestrator holds a non-owning
// reference while the request is in flight.
type Request struct {
	id      uuid.UUID
	camera  *Camera
	buffers map[*Stream]*FrameBuffer
	pending map[*FrameBuffer]*Stream
	status  RequestStatus
}

func newRequest(camera *Camera) *Request {
	return &Request{
		id:      uuid.New(),
		camera:  camera,
		buffers: make(map[*Stream]*FrameBuffer),
		pending: make(map[*FrameBuffer]*Stream),
		status:  RequestPending,
	}
}

// ID returns the request's unique identifier.
func (r *Request) ID() uuid.UUID {
	return r.id
}

func (r *Request) String() string {
	return fmt.Sprintf("request %s", r.id)
}

// Status returns the request's completion state. Individual buffers carry
// their own status; a complete request may still hold buffers that report
// FrameError or FrameCancelled.
func (r *Request) Status() RequestStatus {
	return r.status
}

// AddBuffer attaches buffer to the request for stream. A request carries at
// most one buffer per stream, and buffers must be attached before the
// request is queued.
func (r *Request) AddBuffer(stream *Stream, buffer *FrameBuffer) error {
	if stream == nil || buffer == nil {
		return errors.New("nil stream or buffer")
	}
	if _, ok := r.buffers[stream]; ok {
		return errors.Errorf("stream %q already has a buffer", stream.Name())
	}

	buffer.Metadata.Status = FramePending
	r.buffers[stream] = buffer
	r.pending[buffer] = stream
	return nil
}

// Buffer returns the buffer attached for stream, or nil.
func (r *Request) Buffer(stream *Stream) *FrameBuffer {
	return r.buffers[stream]
}

// Buffers returns the stream-to-buffer mapping. Callers must not modify it.
func (r *Request) Buffers() map[*Stream]*FrameBuffer {
	return r.buffers
}

// HasPendingBuffers reports whether any attached buffer has not completed.
func (r *Request) HasPendingBuffers() bool {
	return len(r.pending) > 0
}

// streamOf returns the stream the buffer was attached for, or nil if the
// buffer does not belong to this request or already completed.
func (r *Request) streamOf(buffer *FrameBuffer) *Stream {
	return r.pending[buffer]
}

// completeBuffer marks buffer as resolved and reports whether the request
// has no pending buffers left. Completing a buffer that is not pending in
// this request is a protocol violation.
func (r *Request) completeBuffer(buffer *FrameBuffer) (bool, error) {
	if _, ok := r.pending[buffer]; !ok {
		return false, errors.Wrapf(ErrProtocolViolation,
			"buffer not pending in %s", r)
	}
	delete(r.pending, buffer)
	return len(r.pending) == 0, nil
}

// complete transitions the request out of the pending state. A request
// drained by a camera stop is marked cancelled; all other requests
// complete normally regardless of per-buffer status.
func (r *Request) complete(cancelled bool) {
	if cancelled {
		r.status = RequestCancelled
	} else {
		r.status = RequestComplete
	}
}
