package gstsrc

import (
	"github.com/pkg/errors"

	"github.com/camstack/camstack"
)

// ErrPoolExhausted is returned by Pool.Acquire when every buffer is
// checked out. Callers treat it as back-pressure: skip the stream for
// this capture cycle and try again when a buffer is released.
var ErrPoolExhausted = errors.New("buffer pool exhausted")

// Pool tracks ownership of a stream's buffers between the camera and the
// downstream consumer. Not safe for concurrent use; it lives on the
// camera's event loop.
type Pool struct {
	free []*camstack.FrameBuffer
	size int
}

// NewPool creates a pool owning the given buffers, all initially free.
func NewPool(buffers []*camstack.FrameBuffer) *Pool {
	return &Pool{
		free: append([]*camstack.FrameBuffer(nil), buffers...),
		size: len(buffers),
	}
}

// Size returns the pool's fixed capacity.
func (p *Pool) Size() int {
	return p.size
}

// Free returns how many buffers are currently available.
func (p *Pool) Free() int {
	return len(p.free)
}

// Acquire checks out one buffer, or returns ErrPoolExhausted.
func (p *Pool) Acquire() (*camstack.FrameBuffer, error) {
	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}
	buffer := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return buffer, nil
}

// Release returns a buffer to the pool.
func (p *Pool) Release(buffer *camstack.FrameBuffer) {
	if len(p.free) == p.size {
		panic("gstsrc: release into a full pool")
	}
	p.free = append(p.free, buffer)
}
