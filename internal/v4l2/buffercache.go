package v4l2

import (
	"github.com/pkg/errors"

	"github.com/camstack/camstack"
)

// ErrCacheFull is returned by BufferCache.Get when every kernel buffer
// slot is in flight.
var ErrCacheFull = errors.New("no free buffer slot")

// BufferCache maps frame buffers to kernel buffer slot indices. The kernel
// identifies buffers by index; reusing the slot a buffer was last queued
// at lets the driver skip re-pinning its memory. Get hands out a slot,
// Put returns it when the buffer comes back from the kernel.
type BufferCache struct {
	entries []cacheEntry
	misses  uint64 // diagnostics only
}

type cacheEntry struct {
	free   bool
	planes []camstack.Plane
}

// NewBufferCache creates a cache with count empty slots, for buffers
// imported into the device. No slot has an identity until a buffer is
// first queued through it.
func NewBufferCache(count int) *BufferCache {
	c := &BufferCache{entries: make([]cacheEntry, count)}
	for i := range c.entries {
		c.entries[i].free = true
	}
	return c
}

// NewBufferCacheWithBuffers creates a cache pre-associated with buffers
// the device itself allocated, slot i holding buffers[i].
func NewBufferCacheWithBuffers(buffers []*camstack.FrameBuffer) *BufferCache {
	c := &BufferCache{entries: make([]cacheEntry, len(buffers))}
	for i, b := range buffers {
		c.entries[i] = cacheEntry{
			free:   true,
			planes: append([]camstack.Plane(nil), b.Planes()...),
		}
	}
	return c
}

// Get returns the slot index to queue buffer at. A free slot that already
// holds this buffer's identity wins; otherwise the first free slot is
// used and takes on the buffer's identity. Returns ErrCacheFull when
// every slot is in flight.
func (c *BufferCache) Get(buffer *camstack.FrameBuffer) (int, error) {
	hit := false
	use := -1

	for i := range c.entries {
		e := &c.entries[i]
		if !e.free {
			continue
		}
		if use < 0 {
			use = i
		}
		if planesEqual(e.planes, buffer.Planes()) {
			hit = true
			use = i
			break
		}
	}

	if !hit {
		c.misses++
	}
	if use < 0 {
		return -1, ErrCacheFull
	}

	c.entries[use].free = false
	if !hit {
		c.entries[use].planes = append([]camstack.Plane(nil), buffer.Planes()...)
	}
	return use, nil
}

// Put marks the slot free again. The slot keeps its identity so the same
// buffer can hit it next time.
func (c *BufferCache) Put(index int) {
	if c.entries[index].free {
		panic("v4l2: buffer slot freed twice")
	}
	c.entries[index].free = true
}

// IsEmpty reports whether no slot is in flight.
func (c *BufferCache) IsEmpty() bool {
	for i := range c.entries {
		if !c.entries[i].free {
			return false
		}
	}
	return true
}

// Misses returns how many Get calls found no identity hit.
func (c *BufferCache) Misses() uint64 {
	return c.misses
}

func planesEqual(a, b []camstack.Plane) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].FD != b[i].FD || a[i].Length != b[i].Length {
			return false
		}
	}
	return true
}
