package camstack

import "fmt"

// StreamConfiguration describes the negotiated parameters of one stream.
type StreamConfiguration struct {
	// PixelFormat is a V4L2 fourcc code.
	PixelFormat uint32

	Width  uint32
	Height uint32

	// Stride is the line stride of the first plane, in bytes.
	Stride uint32

	// FrameSize is the total size of one frame, in bytes.
	FrameSize uint32

	// BufferCount is the number of buffers the stream operates with.
	BufferCount uint32
}

func (c StreamConfiguration) String() string {
	return fmt.Sprintf("%dx%d-%s", c.Width, c.Height, fourccString(c.PixelFormat))
}

// Stream identifies one independent image flow within a camera, such as the
// raw sensor output or the processed capture path. Stream pointers are the
// keys used in request buffer maps and per-stream caches.
type Stream struct {
	name string
	cfg  StreamConfiguration
}

// NewStream creates a stream with the given name. The configuration is
// assigned when the camera is configured.
func NewStream(name string) *Stream {
	return &Stream{name: name}
}

func (s *Stream) Name() string {
	return s.name
}

// Configuration returns the stream's negotiated configuration.
func (s *Stream) Configuration() StreamConfiguration {
	return s.cfg
}

// SetConfiguration records the configuration accepted by the device.
// Pipeline handlers call this during Configure.
func (s *Stream) SetConfiguration(cfg StreamConfiguration) {
	s.cfg = cfg
}

func fourccString(fourcc uint32) string {
	return fmt.Sprintf("%c%c%c%c",
		byte(fourcc), byte(fourcc>>8), byte(fourcc>>16), byte(fourcc>>24))
}
