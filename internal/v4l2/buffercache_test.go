package v4l2

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/camstack/camstack"
)

func testBuffer(fd int, length uint32) *camstack.FrameBuffer {
	return camstack.NewFrameBuffer([]camstack.Plane{{FD: fd, Length: length}})
}

func TestBufferCacheIdentityHit(t *testing.T) {
	cache := NewBufferCache(2)
	b := testBuffer(10, 4096)

	index, err := cache.Get(b)
	if err != nil {
		t.Fatal(err)
	}
	cache.Put(index)

	// The same buffer must land on the slot it used last time.
	again, err := cache.Get(b)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, index, again)
	assert.EqualValues(t, 1, cache.Misses(), "only the first get is a miss")
}

func TestBufferCacheFull(t *testing.T) {
	cache := NewBufferCache(1)

	_, err := cache.Get(testBuffer(10, 4096))
	if err != nil {
		t.Fatal(err)
	}

	_, err = cache.Get(testBuffer(11, 4096))
	assert.Equal(t, ErrCacheFull, err)
}

func TestBufferCacheFallbackKeepsOtherIdentities(t *testing.T) {
	cache := NewBufferCache(2)
	b1 := testBuffer(10, 4096)
	b2 := testBuffer(11, 4096)

	i1, _ := cache.Get(b1)
	i2, _ := cache.Get(b2)
	cache.Put(i1)
	cache.Put(i2)

	// A new identity lands on the first free slot.
	i3, err := cache.Get(testBuffer(12, 4096))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, i1, i3)

	// b2's slot kept its identity.
	again, err := cache.Get(b2)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, i2, again)
}

func TestBufferCacheDoubleFreePanics(t *testing.T) {
	cache := NewBufferCache(1)
	index, err := cache.Get(testBuffer(10, 4096))
	if err != nil {
		t.Fatal(err)
	}
	cache.Put(index)
	assert.Panics(t, func() { cache.Put(index) })
}

func TestBufferCacheWithBuffers(t *testing.T) {
	b1 := testBuffer(10, 4096)
	b2 := testBuffer(11, 4096)
	cache := NewBufferCacheWithBuffers([]*camstack.FrameBuffer{b1, b2})

	i2, err := cache.Get(b2)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 1, i2)

	i1, err := cache.Get(b1)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, 0, i1)
	assert.EqualValues(t, 0, cache.Misses())
}
