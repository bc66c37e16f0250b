package camstack

// FrameStatus describes how a frame buffer completed.
type FrameStatus int

const (
	// FramePending means the buffer has not completed yet.
	FramePending FrameStatus = iota
	// FrameSuccess means the buffer completed and holds valid data.
	FrameSuccess
	// FrameError means the device flagged an error on the frame; the data
	// may be partially valid.
	FrameError
	// FrameCancelled means capture was stopped before the buffer completed.
	// This is the only path to a cancelled buffer.
	FrameCancelled
)

func (s FrameStatus) String() string {
	switch s {
	case FramePending:
		return "pending"
	case FrameSuccess:
		return "success"
	case FrameError:
		return "error"
	case FrameCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Plane is one contiguous memory region backing part of an image,
// identified by a DMA buffer file descriptor and its length in bytes.
type Plane struct {
	FD     int
	Length uint32
}

// PlaneMetadata carries the per-plane payload size, valid once the buffer
// has completed.
type PlaneMetadata struct {
	BytesUsed uint32
}

// FrameMetadata is filled in by the video device when a buffer completes.
type FrameMetadata struct {
	Status FrameStatus

	// Sequence is the frame counter as seen by the hardware.
	Sequence uint32

	// Timestamp is the capture time in nanoseconds.
	Timestamp uint64

	Planes []PlaneMetadata
}

// FrameBuffer describes one whole image as an ordered sequence of planes.
//
// The buffer is owned by the application (or the orchestrator acting on its
// behalf). While the buffer is queued to a device, the device holds a
// borrowed reference and is the only writer of Metadata; the reference is
// returned with the completion event.
type FrameBuffer struct {
	planes []Plane

	// Metadata is written by the owning video device during dequeue and is
	// valid once Status leaves FramePending.
	Metadata FrameMetadata
}

// NewFrameBuffer wraps the given planes. The plane list is fixed for the
// buffer's lifetime and defines its cache identity.
func NewFrameBuffer(planes []Plane) *FrameBuffer {
	return &FrameBuffer{planes: planes}
}

// Planes returns the buffer's plane list. Callers must not modify it.
func (b *FrameBuffer) Planes() []Plane {
	return b.planes
}
