//go:build linux && (amd64 || arm64)

package v4l2

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/camstack/camstack"
)

// MappedFrameBuffer is a frame buffer with every plane mapped into the
// process. Mappings stay valid across queue/dequeue cycles; unmap only
// after the buffer is released.
type MappedFrameBuffer struct {
	buffer *camstack.FrameBuffer
	planes [][]byte
}

// MapFrameBuffer maps all planes of buffer read-write.
func MapFrameBuffer(buffer *camstack.FrameBuffer) (*MappedFrameBuffer, error) {
	m := &MappedFrameBuffer{buffer: buffer}
	for _, plane := range buffer.Planes() {
		data, err := unix.Mmap(plane.FD, 0, int(plane.Length),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			m.Close()
			return nil, errors.Wrapf(err, "map plane fd %d", plane.FD)
		}
		m.planes = append(m.planes, data)
	}
	return m, nil
}

// Buffer returns the underlying frame buffer.
func (m *MappedFrameBuffer) Buffer() *camstack.FrameBuffer {
	return m.buffer
}

// Planes returns one mapped byte slice per plane.
func (m *MappedFrameBuffer) Planes() [][]byte {
	return m.planes
}

// Close unmaps all planes.
func (m *MappedFrameBuffer) Close() error {
	var first error
	for _, data := range m.planes {
		if err := unix.Munmap(data); err != nil && first == nil {
			first = err
		}
	}
	m.planes = nil
	return first
}
