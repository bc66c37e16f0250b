//go:build linux && (amd64 || arm64)

package v4l2

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/camstack/camstack"
)

// fakeOps is a scripted kernel: it grants buffer allocations, records
// queue operations and replays prepared dequeue results.
type fakeOps struct {
	caps   Capability
	format DeviceFormat

	grant    uint32 // buffers granted per allocation, 0 grants the request
	planeLen uint32
	nextFd   int

	reqbufs  []uint32
	queued   []queuedBuffer
	queueErr error
	done     []doneBuffer
	started  bool
	stopped  bool
}

func (f *fakeOps) queryCap() (Capability, error) { return f.caps, nil }

func (f *fakeOps) getFormat(typ uint32) (DeviceFormat, error) { return f.format, nil }

func (f *fakeOps) setFormat(typ uint32, in DeviceFormat) (DeviceFormat, error) {
	f.format = in
	return in, nil
}

func (f *fakeOps) tryFormat(typ uint32, in DeviceFormat) (DeviceFormat, error) {
	return in, nil
}

func (f *fakeOps) enumFormats(typ uint32) ([]PixelFormat, error) {
	return []PixelFormat{f.format.Fourcc}, nil
}

func (f *fakeOps) enumFrameSizes(typ uint32, pf PixelFormat) ([]FrameSize, error) {
	return []FrameSize{{Width: f.format.Width, Height: f.format.Height}}, nil
}

func (f *fakeOps) requestBuffers(typ, memory, count uint32) (uint32, error) {
	f.reqbufs = append(f.reqbufs, count)
	if count == 0 {
		return 0, nil
	}
	if f.grant != 0 && f.grant < count {
		return f.grant, nil
	}
	return count, nil
}

func (f *fakeOps) queryBuffer(typ, index uint32, numPlanes int) ([]planeInfo, error) {
	return []planeInfo{{length: f.planeLen, memOffset: index * f.planeLen}}, nil
}

func (f *fakeOps) exportBuffer(typ, index, plane uint32) (int, error) {
	f.nextFd++
	return f.nextFd, nil
}

func (f *fakeOps) queueBuffer(typ, memory uint32, qb queuedBuffer) error {
	if f.queueErr != nil {
		return f.queueErr
	}
	f.queued = append(f.queued, qb)
	return nil
}

func (f *fakeOps) dequeueBuffer(typ, memory uint32, numPlanes int) (doneBuffer, error) {
	if len(f.done) == 0 {
		return doneBuffer{}, unix.EAGAIN
	}
	d := f.done[0]
	f.done = f.done[1:]
	return d, nil
}

func (f *fakeOps) streamOn(typ uint32) error  { f.started = true; return nil }
func (f *fakeOps) streamOff(typ uint32) error { f.stopped = true; return nil }
func (f *fakeOps) fd() int                    { return -1 }
func (f *fakeOps) close() error               { return nil }

type fakeWatch struct {
	enabled bool
	history []bool
}

func (w *fakeWatch) SetEnabled(enable bool) error {
	w.enabled = enable
	w.history = append(w.history, enable)
	return nil
}

func (w *fakeWatch) Close() error { return nil }

func newTestDevice(t *testing.T, caps uint32) (*VideoDevice, *fakeOps, *fakeWatch) {
	t.Helper()
	ops := &fakeOps{
		caps: Capability{caps: caps},
		format: DeviceFormat{
			Fourcc: PixelFormatYUYV,
			Width:  640,
			Height: 480,
			Planes: []PlaneFormat{{BytesPerLine: 1280, SizeImage: 614400}},
		},
		planeLen: 614400,
	}
	dev, err := newVideoDevice(ops, "fake0")
	if err != nil {
		t.Fatal(err)
	}
	watch := &fakeWatch{}
	dev.watch = watch
	return dev, ops, watch
}

func TestVideoDeviceExportBuffers(t *testing.T) {
	dev, ops, _ := newTestDevice(t, capVideoCapture|capStreaming)

	buffers, err := dev.ExportBuffers(4)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, buffers, 4)
	assert.Equal(t, []uint32{4}, ops.reqbufs)

	seen := map[int]bool{}
	for _, b := range buffers {
		planes := b.Planes()
		assert.Len(t, planes, 1)
		assert.EqualValues(t, 614400, planes[0].Length)
		assert.False(t, seen[planes[0].FD], "plane fds must be distinct")
		seen[planes[0].FD] = true
	}
}

func TestVideoDeviceExportBuffersRollback(t *testing.T) {
	dev, ops, _ := newTestDevice(t, capVideoCapture|capStreaming)
	ops.grant = 2

	_, err := dev.ExportBuffers(4)
	assert.Error(t, err)
	// The partial allocation must be freed again.
	assert.Equal(t, []uint32{4, 0}, ops.reqbufs)

	// A later allocation starts from a clean slate.
	ops.grant = 0
	buffers, err := dev.ExportBuffers(2)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, buffers, 2)
}

func TestVideoDeviceQueueDequeue(t *testing.T) {
	dev, ops, watch := newTestDevice(t, capVideoCapture|capStreaming)

	var ready []*camstack.FrameBuffer
	dev.OnBufferReady(func(b *camstack.FrameBuffer) {
		ready = append(ready, b)
	})

	if err := dev.ImportBuffers(2); err != nil {
		t.Fatal(err)
	}

	buffer := testBuffer(42, 614400)
	if err := dev.QueueBuffer(buffer); err != nil {
		t.Fatal(err)
	}
	assert.True(t, watch.enabled, "first in-flight buffer arms the watch")
	if assert.Len(t, ops.queued, 1) {
		assert.Equal(t, 42, ops.queued[0].planes[0].fd)
	}

	ops.done = []doneBuffer{{
		index:     ops.queued[0].index,
		sequence:  7,
		secs:      1,
		usecs:     2,
		bytesUsed: []uint32{123},
	}}
	dev.onReady()

	if assert.Len(t, ready, 1) {
		assert.Same(t, buffer, ready[0])
	}
	assert.Equal(t, camstack.FrameSuccess, buffer.Metadata.Status)
	assert.EqualValues(t, 7, buffer.Metadata.Sequence)
	assert.EqualValues(t, 1_000_002_000, buffer.Metadata.Timestamp)
	if assert.Len(t, buffer.Metadata.Planes, 1) {
		assert.EqualValues(t, 123, buffer.Metadata.Planes[0].BytesUsed)
	}
	assert.False(t, watch.enabled, "last dequeue disarms the watch")
}

func TestVideoDeviceDequeueErrorFlag(t *testing.T) {
	dev, ops, _ := newTestDevice(t, capVideoCapture|capStreaming)
	dev.OnBufferReady(func(*camstack.FrameBuffer) {})

	if err := dev.ImportBuffers(1); err != nil {
		t.Fatal(err)
	}
	buffer := testBuffer(42, 614400)
	if err := dev.QueueBuffer(buffer); err != nil {
		t.Fatal(err)
	}

	ops.done = []doneBuffer{{
		index:     ops.queued[0].index,
		flags:     bufFlagError,
		bytesUsed: []uint32{0},
	}}
	dev.onReady()

	assert.Equal(t, camstack.FrameError, buffer.Metadata.Status)
}

func TestVideoDeviceQueueBeyondSlots(t *testing.T) {
	dev, _, _ := newTestDevice(t, capVideoCapture|capStreaming)

	if err := dev.ImportBuffers(1); err != nil {
		t.Fatal(err)
	}
	if err := dev.QueueBuffer(testBuffer(42, 614400)); err != nil {
		t.Fatal(err)
	}

	err := dev.QueueBuffer(testBuffer(43, 614400))
	assert.Equal(t, ErrCacheFull, errors.Cause(err))
}

func TestVideoDeviceStreamOffCancelsInFlight(t *testing.T) {
	dev, ops, watch := newTestDevice(t, capVideoCapture|capStreaming)

	var ready []*camstack.FrameBuffer
	dev.OnBufferReady(func(b *camstack.FrameBuffer) {
		ready = append(ready, b)
	})

	if err := dev.ImportBuffers(2); err != nil {
		t.Fatal(err)
	}
	b1 := testBuffer(42, 614400)
	b2 := testBuffer(43, 614400)
	if err := dev.QueueBuffer(b1); err != nil {
		t.Fatal(err)
	}
	if err := dev.QueueBuffer(b2); err != nil {
		t.Fatal(err)
	}
	if err := dev.StreamOn(); err != nil {
		t.Fatal(err)
	}

	if err := dev.StreamOff(); err != nil {
		t.Fatal(err)
	}
	assert.True(t, ops.stopped)
	assert.Len(t, ready, 2, "every in-flight buffer is delivered")
	assert.Equal(t, camstack.FrameCancelled, b1.Metadata.Status)
	assert.Equal(t, camstack.FrameCancelled, b2.Metadata.Status)
	assert.False(t, watch.enabled)

	// All slots returned, so buffers can be released.
	assert.NoError(t, dev.ReleaseBuffers())
}

func TestVideoDeviceSetFormatRoundTrip(t *testing.T) {
	dev, ops, _ := newTestDevice(t, capVideoCapture|capStreaming)

	want := DeviceFormat{
		Fourcc: PixelFormatNV12,
		Width:  1920,
		Height: 1080,
		Planes: []PlaneFormat{{BytesPerLine: 1920, SizeImage: 1920 * 1080 * 3 / 2}},
	}
	got, err := dev.SetFormat(want)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, want, dev.Format())

	// The accepted format is what the kernel reports from now on.
	echoed, err := ops.getFormat(dev.bufType)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, want, echoed)
}

func TestVideoDeviceFormatEnumeration(t *testing.T) {
	dev, _, _ := newTestDevice(t, capVideoCapture|capStreaming)

	formats, err := dev.Formats()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []PixelFormat{PixelFormatYUYV}, formats)

	sizes, err := dev.FrameSizes(PixelFormatYUYV)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, []FrameSize{{Width: 640, Height: 480}}, sizes)
}

func TestVideoDeviceTryFormatLeavesState(t *testing.T) {
	dev, ops, _ := newTestDevice(t, capVideoCapture|capStreaming)
	before := ops.format

	adjusted, err := dev.TryFormat(DeviceFormat{
		Fourcc: PixelFormatNV12,
		Width:  1920,
		Height: 1080,
	})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, PixelFormatNV12, adjusted.Fourcc)

	// TRY_FMT must not change the device's active format.
	assert.Equal(t, before, ops.format)
	assert.Equal(t, before, dev.Format())
}

func TestFormatEncodingMplane(t *testing.T) {
	in := DeviceFormat{
		Fourcc: PixelFormatNV12,
		Width:  1280,
		Height: 720,
		Planes: []PlaneFormat{
			{BytesPerLine: 1280, SizeImage: 921600},
			{BytesPerLine: 1280, SizeImage: 460800},
		},
	}
	f := encodeFormat(bufTypeVideoCaptureMplane, in)
	assert.Equal(t, in, decodeFormat(&f))
}

func TestFormatEncodingMeta(t *testing.T) {
	in := DeviceFormat{
		Fourcc: PixelFormat('B' | 'C'<<8 | 'S'<<16 | 'T'<<24),
		Planes: []PlaneFormat{{SizeImage: 16384}},
	}
	f := encodeFormat(bufTypeMetaCapture, in)
	assert.Equal(t, in, decodeFormat(&f))
}

func TestVideoDeviceOutputCopiesBytesUsed(t *testing.T) {
	dev, ops, _ := newTestDevice(t, capVideoOutput|capStreaming)

	if err := dev.ImportBuffers(1); err != nil {
		t.Fatal(err)
	}

	buffer := testBuffer(42, 614400)
	buffer.Metadata.Planes = []camstack.PlaneMetadata{{BytesUsed: 512}}
	if err := dev.QueueBuffer(buffer); err != nil {
		t.Fatal(err)
	}

	if assert.Len(t, ops.queued, 1) {
		assert.EqualValues(t, 512, ops.queued[0].planes[0].bytesUsed)
	}
}
