package camstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestAddBuffer(t *testing.T) {
	cam := NewCamera("test", newFakeHandler(), nil)
	req := cam.CreateRequest()
	stream := NewStream("a")
	buffer := NewFrameBuffer([]Plane{{FD: 10, Length: 4096}})

	buffer.Metadata.Status = FrameSuccess // stale from a previous cycle
	if err := req.AddBuffer(stream, buffer); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, FramePending, buffer.Metadata.Status, "attach resets stale status")
	assert.Same(t, buffer, req.Buffer(stream))
	assert.True(t, req.HasPendingBuffers())
}

func TestRequestAddBufferTwiceOnStream(t *testing.T) {
	cam := NewCamera("test", newFakeHandler(), nil)
	req := cam.CreateRequest()
	stream := NewStream("a")

	if err := req.AddBuffer(stream, NewFrameBuffer([]Plane{{FD: 10, Length: 1}})); err != nil {
		t.Fatal(err)
	}
	err := req.AddBuffer(stream, NewFrameBuffer([]Plane{{FD: 11, Length: 1}}))
	assert.Error(t, err)
}

func TestRequestAddBufferNil(t *testing.T) {
	cam := NewCamera("test", newFakeHandler(), nil)
	req := cam.CreateRequest()

	assert.Error(t, req.AddBuffer(nil, NewFrameBuffer(nil)))
	assert.Error(t, req.AddBuffer(NewStream("a"), nil))
}

func TestRequestIDsAreUnique(t *testing.T) {
	cam := NewCamera("test", newFakeHandler(), nil)
	assert.NotEqual(t, cam.CreateRequest().ID(), cam.CreateRequest().ID())
}

func TestCameraStateMachine(t *testing.T) {
	h := newFakeHandler()
	stream := NewStream("a")
	cam := NewCamera("test", h, []*Stream{stream})
	cfgs := map[*Stream]StreamConfiguration{stream: {Width: 640, Height: 480}}

	// Operations out of order fail fast and change nothing.
	assert.Equal(t, ErrCameraBusy, cam.Configure(cfgs))
	assert.Equal(t, ErrCameraBusy, cam.Start())
	assert.Equal(t, ErrCameraNotRunning, cam.Stop())

	if err := cam.Acquire(); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ErrCameraBusy, cam.Acquire(), "second acquire is rejected")

	if err := cam.Configure(cfgs); err != nil {
		t.Fatal(err)
	}
	if err := cam.Start(); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ErrCameraBusy, cam.Configure(cfgs), "no reconfigure while running")
	assert.Equal(t, ErrCameraBusy, cam.Release(), "no release while running")

	if err := cam.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := cam.Release(); err != nil {
		t.Fatal(err)
	}
	assert.NoError(t, cam.Acquire(), "released camera can be acquired again")
}

func TestQueueRequestValidation(t *testing.T) {
	h := newFakeHandler()
	streamA := NewStream("a")
	streamB := NewStream("b")
	cam := startedCamera(t, h, streamA, streamB)

	// Missing a stream's buffer.
	req := cam.CreateRequest()
	b := NewFrameBuffer([]Plane{{FD: 10, Length: 4096}})
	if err := req.AddBuffer(streamA, b); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ErrInvalidRequest, cam.QueueRequest(req))

	// A stream the camera does not expose.
	req = cam.CreateRequest()
	if err := req.AddBuffer(streamA, NewFrameBuffer([]Plane{{FD: 10, Length: 1}})); err != nil {
		t.Fatal(err)
	}
	if err := req.AddBuffer(NewStream("other"), NewFrameBuffer([]Plane{{FD: 11, Length: 1}})); err != nil {
		t.Fatal(err)
	}
	assert.Error(t, cam.QueueRequest(req))

	// A request created for another camera.
	other := NewCamera("other", h, nil)
	assert.Error(t, cam.QueueRequest(other.CreateRequest()))
}

func TestQueueRequestNotRunning(t *testing.T) {
	h := newFakeHandler()
	stream := NewStream("a")
	cam := NewCamera("test", h, []*Stream{stream})

	req := cam.CreateRequest()
	if err := req.AddBuffer(stream, NewFrameBuffer([]Plane{{FD: 10, Length: 1}})); err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, ErrCameraNotRunning, cam.QueueRequest(req))
}
