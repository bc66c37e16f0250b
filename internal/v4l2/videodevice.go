//go:build linux && (amd64 || arm64)

package v4l2

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/camstack/camstack"
	"github.com/camstack/camstack/internal/event"
	"github.com/camstack/camstack/internal/logging"
)

var log = logging.DefaultLogger.WithTag("v4l2")

// readWatcher arms and disarms readiness notification for the device fd.
// The real implementation is an event.Notifier on the manager's loop.
type readWatcher interface {
	SetEnabled(enable bool) error
	Close() error
}

// VideoDevice drives one V4L2 video node: format negotiation, buffer
// allocation and the queue/dequeue cycle. Buffers handed to QueueBuffer
// come back, exactly once each, through the buffer-ready callback, either
// completed by the driver or cancelled by StreamOff.
//
// The buffer-ready callback fires on the event loop goroutine. All other
// methods may be called from any goroutine.
type VideoDevice struct {
	ops  deviceOps
	node string
	caps Capability

	bufType uint32
	format  DeviceFormat

	mu       sync.Mutex
	memory   uint32
	cache    *BufferCache
	queued   map[uint32]*camstack.FrameBuffer
	watch    readWatcher
	watching bool

	bufferReady func(*camstack.FrameBuffer)
}

// Open opens the video device node at path and registers its readiness
// notifier with loop. The notifier stays disarmed until a buffer is in
// flight.
func Open(path string, loop *event.Loop) (*VideoDevice, error) {
	ops, err := openOps(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}

	d, err := newVideoDevice(ops, path)
	if err != nil {
		ops.close()
		return nil, err
	}

	notifier, err := loop.NewNotifier(ops.fd(), direction(d.bufType), d.onReady)
	if err != nil {
		ops.close()
		return nil, errors.Wrapf(err, "watch %s", path)
	}
	d.watch = notifier
	return d, nil
}

// AdoptFd duplicates fd and drives it as a video device with an explicit
// direction. Used when capture and output queues share one device node
// and the capability flags alone cannot pick a side.
func AdoptFd(fd int, output bool, loop *event.Loop) (*VideoDevice, error) {
	dupfd, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "duplicate device fd")
	}
	ops := &ioctlOps{devfd: dupfd}
	node := fmt.Sprintf("fd<%d>", fd)

	d, err := newVideoDeviceForced(ops, node, output)
	if err != nil {
		ops.close()
		return nil, err
	}

	notifier, err := loop.NewNotifier(dupfd, direction(d.bufType), d.onReady)
	if err != nil {
		ops.close()
		return nil, errors.Wrapf(err, "watch %s", node)
	}
	d.watch = notifier
	return d, nil
}

func direction(bufType uint32) event.Direction {
	if isOutput(bufType) {
		return event.Write
	}
	return event.Read
}

func newVideoDeviceForced(ops deviceOps, node string, output bool) (*VideoDevice, error) {
	caps, err := ops.queryCap()
	if err != nil {
		return nil, errors.Wrapf(err, "query capabilities of %s", node)
	}
	if !caps.HasStreaming() {
		return nil, errors.Errorf("%s does not support streaming I/O", node)
	}

	var bufType uint32
	switch {
	case output && caps.IsMultiplanar():
		bufType = bufTypeVideoOutputMplane
	case output && caps.IsVideoOutput():
		bufType = bufTypeVideoOutput
	case output && caps.IsMetaOutput():
		bufType = bufTypeMetaOutput
	case output:
		return nil, errors.Errorf("%s has no output capability", node)
	case caps.IsMultiplanar():
		bufType = bufTypeVideoCaptureMplane
	case caps.IsVideoCapture():
		bufType = bufTypeVideoCapture
	case caps.IsMetaCapture():
		bufType = bufTypeMetaCapture
	default:
		return nil, errors.Errorf("%s has no capture capability", node)
	}

	return initVideoDevice(ops, node, caps, bufType)
}

func newVideoDevice(ops deviceOps, node string) (*VideoDevice, error) {
	caps, err := ops.queryCap()
	if err != nil {
		return nil, errors.Wrapf(err, "query capabilities of %s", node)
	}
	if !caps.HasStreaming() {
		return nil, errors.Errorf("%s does not support streaming I/O", node)
	}

	var bufType uint32
	switch {
	case caps.IsVideoCapture() && caps.IsMultiplanar():
		bufType = bufTypeVideoCaptureMplane
	case caps.IsVideoCapture():
		bufType = bufTypeVideoCapture
	case caps.IsVideoOutput() && caps.IsMultiplanar():
		bufType = bufTypeVideoOutputMplane
	case caps.IsVideoOutput():
		bufType = bufTypeVideoOutput
	case caps.IsMetaCapture():
		bufType = bufTypeMetaCapture
	case caps.IsMetaOutput():
		bufType = bufTypeMetaOutput
	default:
		return nil, errors.Errorf("%s is not a video device", node)
	}

	return initVideoDevice(ops, node, caps, bufType)
}

func initVideoDevice(ops deviceOps, node string, caps Capability, bufType uint32) (*VideoDevice, error) {
	d := &VideoDevice{
		ops:     ops,
		node:    node,
		caps:    caps,
		bufType: bufType,
		queued:  make(map[uint32]*camstack.FrameBuffer),
	}

	var err error
	d.format, err = ops.getFormat(bufType)
	if err != nil {
		return nil, errors.Wrapf(err, "get format of %s", node)
	}

	log.Debug("opened %s: %s (%s), %s", node, caps.Card, caps.Driver, d.format)
	return d, nil
}

// Close releases the device node. Buffers must be released first.
func (d *VideoDevice) Close() error {
	if d.watch != nil {
		d.watch.Close()
	}
	return d.ops.close()
}

func (d *VideoDevice) DevNode() string {
	return d.node
}

func (d *VideoDevice) Capability() Capability {
	return d.caps
}

// OnBufferReady sets the single consumer of dequeued buffers. Must be set
// before the first buffer is queued.
func (d *VideoDevice) OnBufferReady(fn func(*camstack.FrameBuffer)) {
	if d.bufferReady != nil {
		panic("v4l2: buffer-ready consumer already set")
	}
	d.bufferReady = fn
}

// Format returns the device's current format.
func (d *VideoDevice) Format() DeviceFormat {
	return d.format
}

// SetFormat negotiates f with the driver and returns what the driver
// accepted, which may differ from the request.
func (d *VideoDevice) SetFormat(f DeviceFormat) (DeviceFormat, error) {
	got, err := d.ops.setFormat(d.bufType, f)
	if err != nil {
		return DeviceFormat{}, errors.Wrapf(err, "set format on %s", d.node)
	}
	d.format = got
	return got, nil
}

// TryFormat asks the driver what it would accept for f without applying it.
func (d *VideoDevice) TryFormat(f DeviceFormat) (DeviceFormat, error) {
	return d.ops.tryFormat(d.bufType, f)
}

// Formats enumerates the pixel formats the device supports.
func (d *VideoDevice) Formats() ([]PixelFormat, error) {
	return d.ops.enumFormats(d.bufType)
}

// FrameSizes enumerates the frame sizes supported for f.
func (d *VideoDevice) FrameSizes(f PixelFormat) ([]FrameSize, error) {
	return d.ops.enumFrameSizes(d.bufType, f)
}

// ExportBuffers allocates count driver buffers and exports each plane as
// a dmabuf file descriptor the caller owns. On any failure the allocation
// is rolled back and no buffers remain.
func (d *VideoDevice) ExportBuffers(count int) ([]*camstack.FrameBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cache != nil {
		return nil, errors.Errorf("%s already has buffers allocated", d.node)
	}

	n, err := d.ops.requestBuffers(d.bufType, memoryMmap, uint32(count))
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d buffers on %s", count, d.node)
	}
	if int(n) < count {
		d.ops.requestBuffers(d.bufType, memoryMmap, 0)
		return nil, errors.Errorf("%s allocated %d of %d buffers", d.node, n, count)
	}

	buffers := make([]*camstack.FrameBuffer, 0, count)
	for i := uint32(0); i < uint32(count); i++ {
		infos, err := d.ops.queryBuffer(d.bufType, i, len(d.format.Planes))
		if err == nil && len(infos) == 0 {
			err = errors.New("buffer has no planes")
		}
		var planes []camstack.Plane
		if err == nil {
			planes, err = d.exportPlanes(i, infos)
		}
		if err != nil {
			closeBufferFds(buffers)
			d.ops.requestBuffers(d.bufType, memoryMmap, 0)
			return nil, errors.Wrapf(err, "export buffer %d on %s", i, d.node)
		}
		buffers = append(buffers, camstack.NewFrameBuffer(planes))
	}

	d.memory = memoryMmap
	d.cache = NewBufferCacheWithBuffers(buffers)
	return buffers, nil
}

func (d *VideoDevice) exportPlanes(index uint32, infos []planeInfo) ([]camstack.Plane, error) {
	planes := make([]camstack.Plane, 0, len(infos))
	for p, info := range infos {
		fd, err := d.ops.exportBuffer(d.bufType, index, uint32(p))
		if err != nil {
			closePlaneFds(planes)
			return nil, err
		}
		planes = append(planes, camstack.Plane{FD: fd, Length: info.length})
	}
	return planes, nil
}

func closePlaneFds(planes []camstack.Plane) {
	for _, p := range planes {
		unix.Close(p.FD)
	}
}

func closeBufferFds(buffers []*camstack.FrameBuffer) {
	for _, b := range buffers {
		closePlaneFds(b.Planes())
	}
}

// ImportBuffers prepares the device to accept count externally allocated
// dmabuf buffers. No memory changes hands until buffers are queued.
func (d *VideoDevice) ImportBuffers(count int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cache != nil {
		return errors.Errorf("%s already has buffers allocated", d.node)
	}

	n, err := d.ops.requestBuffers(d.bufType, memoryDmabuf, uint32(count))
	if err != nil {
		return errors.Wrapf(err, "import %d buffers on %s", count, d.node)
	}

	d.memory = memoryDmabuf
	d.cache = NewBufferCache(int(n))
	return nil
}

// ReleaseBuffers frees the device's buffer slots. All buffers must have
// been dequeued or cancelled first.
func (d *VideoDevice) ReleaseBuffers() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cache == nil {
		return nil
	}
	if !d.cache.IsEmpty() {
		return errors.Errorf("%s still has buffers in flight", d.node)
	}
	if d.cache.Misses() > 0 {
		log.Debug("%s: %d buffer slot misses", d.node, d.cache.Misses())
	}

	d.cache = nil
	_, err := d.ops.requestBuffers(d.bufType, d.memory, 0)
	return errors.Wrapf(err, "release buffers on %s", d.node)
}

// HasBuffers reports whether buffer slots are currently allocated.
func (d *VideoDevice) HasBuffers() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache != nil
}

// QueueBuffer hands buffer to the driver. For output devices the
// bytes-used counts are taken from the buffer's metadata. Queueing the
// first buffer arms the readiness watch.
func (d *VideoDevice) QueueBuffer(buffer *camstack.FrameBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cache == nil {
		return errors.Errorf("%s has no buffers allocated", d.node)
	}

	index, err := d.cache.Get(buffer)
	if err != nil {
		return errors.Wrapf(err, "queue buffer on %s", d.node)
	}

	qb := queuedBuffer{index: uint32(index)}
	if isOutput(d.bufType) {
		// Output frames carry their metadata into the kernel with them.
		qb.sequence = buffer.Metadata.Sequence
		qb.secs = int64(buffer.Metadata.Timestamp / 1e9)
		qb.usecs = int64(buffer.Metadata.Timestamp % 1e9 / 1e3)
	}
	for p, plane := range buffer.Planes() {
		qp := queuedPlane{fd: plane.FD, length: plane.Length}
		if isOutput(d.bufType) {
			qp.bytesUsed = plane.Length
			if p < len(buffer.Metadata.Planes) {
				qp.bytesUsed = buffer.Metadata.Planes[p].BytesUsed
			}
		}
		qb.planes = append(qb.planes, qp)
	}

	if err := d.ops.queueBuffer(d.bufType, d.memory, qb); err != nil {
		d.cache.Put(index)
		return errors.Wrapf(err, "queue buffer %d on %s", index, d.node)
	}

	d.queued[uint32(index)] = buffer
	if len(d.queued) == 1 {
		d.setWatchLocked(true)
	}
	return nil
}

// onReady runs on the event loop when the device fd becomes readable.
func (d *VideoDevice) onReady() {
	buffer, err := d.dequeueBuffer()
	if err != nil {
		// Not ready after all; wait for the next wakeup.
		if errors.Cause(err) == unix.EAGAIN {
			return
		}
		log.Error("%s: dequeue: %v", d.node, err)
		return
	}
	if d.bufferReady != nil {
		d.bufferReady(buffer)
	}
}

func (d *VideoDevice) dequeueBuffer() (*camstack.FrameBuffer, error) {
	done, err := d.ops.dequeueBuffer(d.bufType, d.memory, len(d.format.Planes))
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	buffer, ok := d.queued[done.index]
	if !ok {
		d.mu.Unlock()
		return nil, errors.Errorf("driver returned unqueued buffer %d", done.index)
	}
	delete(d.queued, done.index)
	d.cache.Put(int(done.index))
	if len(d.queued) == 0 {
		d.setWatchLocked(false)
	}
	d.mu.Unlock()

	status := camstack.FrameSuccess
	if done.flags&bufFlagError != 0 {
		status = camstack.FrameError
	}
	buffer.Metadata = camstack.FrameMetadata{
		Status:    status,
		Sequence:  done.sequence,
		Timestamp: uint64(done.secs)*1e9 + uint64(done.usecs)*1e3,
	}
	for p, plane := range buffer.Planes() {
		used := plane.Length
		if p < len(done.bytesUsed) {
			used = done.bytesUsed[p]
		}
		buffer.Metadata.Planes = append(buffer.Metadata.Planes,
			camstack.PlaneMetadata{BytesUsed: used})
	}
	return buffer, nil
}

// StreamOn starts the device's queue.
func (d *VideoDevice) StreamOn() error {
	return errors.Wrapf(d.ops.streamOn(d.bufType), "stream on %s", d.node)
}

// StreamOff stops the queue and cancels every in-flight buffer. Each
// cancelled buffer is delivered through the buffer-ready callback with
// cancelled status. The delivery order is unspecified.
func (d *VideoDevice) StreamOff() error {
	if err := d.ops.streamOff(d.bufType); err != nil {
		return errors.Wrapf(err, "stream off %s", d.node)
	}

	d.mu.Lock()
	cancelled := make([]*camstack.FrameBuffer, 0, len(d.queued))
	for index, buffer := range d.queued {
		buffer.Metadata.Status = camstack.FrameCancelled
		d.cache.Put(int(index))
		cancelled = append(cancelled, buffer)
	}
	d.queued = make(map[uint32]*camstack.FrameBuffer)
	d.setWatchLocked(false)
	d.mu.Unlock()

	for _, buffer := range cancelled {
		if d.bufferReady != nil {
			d.bufferReady(buffer)
		}
	}
	return nil
}

func (d *VideoDevice) setWatchLocked(enable bool) {
	if d.watch == nil || d.watching == enable {
		return
	}
	if err := d.watch.SetEnabled(enable); err != nil {
		log.Warn("%s: readiness watch: %v", d.node, err)
		return
	}
	d.watching = enable
}
