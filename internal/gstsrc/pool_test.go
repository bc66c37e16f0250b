package gstsrc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/camstack/camstack"
)

func poolBuffers(n int) []*camstack.FrameBuffer {
	buffers := make([]*camstack.FrameBuffer, n)
	for i := range buffers {
		buffers[i] = camstack.NewFrameBuffer([]camstack.Plane{{FD: 10 + i, Length: 4096}})
	}
	return buffers
}

func TestPoolAcquireRelease(t *testing.T) {
	pool := NewPool(poolBuffers(2))
	assert.Equal(t, 2, pool.Size())

	b1, err := pool.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	b2, err := pool.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	assert.NotSame(t, b1, b2)
	assert.Equal(t, 0, pool.Free())

	pool.Release(b1)
	again, err := pool.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	assert.Same(t, b1, again)
}

func TestPoolExhaustion(t *testing.T) {
	pool := NewPool(poolBuffers(1))

	if _, err := pool.Acquire(); err != nil {
		t.Fatal(err)
	}
	_, err := pool.Acquire()
	assert.Equal(t, ErrPoolExhausted, err)
}

func TestPoolOverRelease(t *testing.T) {
	pool := NewPool(poolBuffers(1))
	assert.Panics(t, func() {
		pool.Release(camstack.NewFrameBuffer(nil))
	})
}
