//go:build linux && (amd64 || arm64)

package v4l2

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// planeInfo describes one plane of a driver-allocated buffer.
type planeInfo struct {
	length    uint32
	memOffset uint32
}

type queuedPlane struct {
	fd        int
	bytesUsed uint32
	length    uint32
}

// queuedBuffer is a buffer handed to the kernel queue. Sequence and
// timestamp matter only in the output direction, where they travel with
// the frame data.
type queuedBuffer struct {
	index    uint32
	sequence uint32
	secs     int64
	usecs    int64
	planes   []queuedPlane
}

// doneBuffer is a buffer returned by the kernel queue.
type doneBuffer struct {
	index     uint32
	flags     uint32
	sequence  uint32
	secs      int64
	usecs     int64
	bytesUsed []uint32
}

// deviceOps is the kernel surface VideoDevice is built on. The one real
// implementation issues ioctls; tests substitute a scripted fake.
type deviceOps interface {
	queryCap() (Capability, error)
	getFormat(typ uint32) (DeviceFormat, error)
	setFormat(typ uint32, f DeviceFormat) (DeviceFormat, error)
	tryFormat(typ uint32, f DeviceFormat) (DeviceFormat, error)
	enumFormats(typ uint32) ([]PixelFormat, error)
	enumFrameSizes(typ uint32, f PixelFormat) ([]FrameSize, error)
	requestBuffers(typ, memory, count uint32) (uint32, error)
	queryBuffer(typ, index uint32, numPlanes int) ([]planeInfo, error)
	exportBuffer(typ, index, plane uint32) (int, error)
	queueBuffer(typ, memory uint32, qb queuedBuffer) error
	dequeueBuffer(typ, memory uint32, numPlanes int) (doneBuffer, error)
	streamOn(typ uint32) error
	streamOff(typ uint32) error
	fd() int
	close() error
}

func isMultiPlanar(typ uint32) bool {
	return typ == bufTypeVideoCaptureMplane || typ == bufTypeVideoOutputMplane
}

func isOutput(typ uint32) bool {
	return typ == bufTypeVideoOutput || typ == bufTypeVideoOutputMplane ||
		typ == bufTypeMetaOutput
}

// ioctlOps talks to a real V4L2 character device.
type ioctlOps struct {
	devfd int
}

func openOps(path string) (*ioctlOps, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &ioctlOps{devfd: fd}, nil
}

func (o *ioctlOps) ioctl(request uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		uintptr(o.devfd),
		request,
		uintptr(arg),
	)
	if errno != 0 {
		return errno
	}
	return nil
}

func (o *ioctlOps) queryCap() (Capability, error) {
	var c v4l2_capability
	if err := o.ioctl(vidiocQuerycap, unsafe.Pointer(&c)); err != nil {
		return Capability{}, err
	}
	caps := c.capabilities
	// When the driver reports per-node capabilities, those win over the
	// physical device's aggregate set.
	if caps&capDeviceCaps != 0 {
		caps = c.device_caps
	}
	return Capability{
		Driver:  cstring(c.driver[:]),
		Card:    cstring(c.card[:]),
		BusInfo: cstring(c.bus_info[:]),
		Version: c.version,
		caps:    caps,
	}, nil
}

func decodeFormat(f *v4l2_format) DeviceFormat {
	switch {
	case isMultiPlanar(f.typ):
		mp := f.pixMplane()
		out := DeviceFormat{
			Fourcc: PixelFormat(mp.pixelformat),
			Width:  mp.width,
			Height: mp.height,
		}
		for i := 0; i < int(mp.num_planes); i++ {
			out.Planes = append(out.Planes, PlaneFormat{
				BytesPerLine: mp.plane_fmt[i].bytesperline,
				SizeImage:    mp.plane_fmt[i].sizeimage,
			})
		}
		return out
	case f.typ == bufTypeMetaCapture || f.typ == bufTypeMetaOutput:
		m := f.meta()
		return DeviceFormat{
			Fourcc: PixelFormat(m.dataformat),
			Planes: []PlaneFormat{{SizeImage: m.buffersize}},
		}
	default:
		pix := f.pix()
		return DeviceFormat{
			Fourcc: PixelFormat(pix.pixelformat),
			Width:  pix.width,
			Height: pix.height,
			Planes: []PlaneFormat{{
				BytesPerLine: pix.bytesperline,
				SizeImage:    pix.sizeimage,
			}},
		}
	}
}

func encodeFormat(typ uint32, in DeviceFormat) v4l2_format {
	f := v4l2_format{typ: typ}
	switch {
	case isMultiPlanar(typ):
		mp := f.pixMplane()
		mp.width = in.Width
		mp.height = in.Height
		mp.pixelformat = uint32(in.Fourcc)
		mp.field = fieldNone
		mp.num_planes = uint8(len(in.Planes))
		for i, p := range in.Planes {
			mp.plane_fmt[i].bytesperline = p.BytesPerLine
			mp.plane_fmt[i].sizeimage = p.SizeImage
		}
	case typ == bufTypeMetaCapture || typ == bufTypeMetaOutput:
		m := f.meta()
		m.dataformat = uint32(in.Fourcc)
		if len(in.Planes) > 0 {
			m.buffersize = in.Planes[0].SizeImage
		}
	default:
		pix := f.pix()
		pix.width = in.Width
		pix.height = in.Height
		pix.pixelformat = uint32(in.Fourcc)
		pix.field = fieldNone
		if len(in.Planes) > 0 {
			pix.bytesperline = in.Planes[0].BytesPerLine
			pix.sizeimage = in.Planes[0].SizeImage
		}
	}
	return f
}

func (o *ioctlOps) getFormat(typ uint32) (DeviceFormat, error) {
	f := v4l2_format{typ: typ}
	if err := o.ioctl(vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return DeviceFormat{}, err
	}
	return decodeFormat(&f), nil
}

func (o *ioctlOps) setFormat(typ uint32, in DeviceFormat) (DeviceFormat, error) {
	f := encodeFormat(typ, in)
	if err := o.ioctl(vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return DeviceFormat{}, err
	}
	return decodeFormat(&f), nil
}

func (o *ioctlOps) tryFormat(typ uint32, in DeviceFormat) (DeviceFormat, error) {
	f := encodeFormat(typ, in)
	if err := o.ioctl(vidiocTryFmt, unsafe.Pointer(&f)); err != nil {
		return DeviceFormat{}, err
	}
	return decodeFormat(&f), nil
}

func (o *ioctlOps) enumFormats(typ uint32) ([]PixelFormat, error) {
	var out []PixelFormat
	for i := uint32(0); ; i++ {
		fd := v4l2_fmtdesc{index: i, typ: typ}
		if err := o.ioctl(vidiocEnumFmt, unsafe.Pointer(&fd)); err != nil {
			if err == unix.EINVAL {
				return out, nil
			}
			return nil, err
		}
		out = append(out, PixelFormat(fd.pixelformat))
	}
}

func (o *ioctlOps) enumFrameSizes(typ uint32, f PixelFormat) ([]FrameSize, error) {
	var out []FrameSize
	for i := uint32(0); ; i++ {
		fs := v4l2_frmsizeenum{index: i, pixelformat: uint32(f)}
		if err := o.ioctl(vidiocEnumFramesizes, unsafe.Pointer(&fs)); err != nil {
			if err == unix.EINVAL {
				return out, nil
			}
			return nil, err
		}
		if fs.typ != frmsizeTypeDiscrete {
			// Stepwise ranges are reported as their maximum.
			sw := fs.stepwise()
			out = append(out, FrameSize{Width: sw.max_width, Height: sw.max_height})
			return out, nil
		}
		d := fs.discrete()
		out = append(out, FrameSize{Width: d.width, Height: d.height})
	}
}

func (o *ioctlOps) requestBuffers(typ, memory, count uint32) (uint32, error) {
	rb := v4l2_requestbuffers{
		count:  count,
		typ:    typ,
		memory: memory,
	}
	if err := o.ioctl(vidiocReqbufs, unsafe.Pointer(&rb)); err != nil {
		return 0, err
	}
	return rb.count, nil
}

func (o *ioctlOps) queryBuffer(typ, index uint32, numPlanes int) ([]planeInfo, error) {
	qb := v4l2_buffer{
		index:  index,
		typ:    typ,
		memory: memoryMmap,
	}

	if isMultiPlanar(typ) {
		planes := make([]v4l2_plane, numPlanes)
		qb.length = uint32(numPlanes)
		qb.setPlanes(&planes[0])
		err := o.ioctl(vidiocQuerybuf, unsafe.Pointer(&qb))
		runtime.KeepAlive(planes)
		if err != nil {
			return nil, err
		}
		out := make([]planeInfo, qb.length)
		for i := range out {
			out[i] = planeInfo{
				length:    planes[i].length,
				memOffset: planes[i].memOffset(),
			}
		}
		return out, nil
	}

	if err := o.ioctl(vidiocQuerybuf, unsafe.Pointer(&qb)); err != nil {
		return nil, err
	}
	return []planeInfo{{length: qb.length, memOffset: qb.memOffset()}}, nil
}

func (o *ioctlOps) exportBuffer(typ, index, plane uint32) (int, error) {
	eb := v4l2_exportbuffer{
		typ:   typ,
		index: index,
		plane: plane,
		flags: unix.O_RDWR | unix.O_CLOEXEC,
	}
	if err := o.ioctl(vidiocExpbuf, unsafe.Pointer(&eb)); err != nil {
		return -1, err
	}
	return int(eb.fd), nil
}

func (o *ioctlOps) queueBuffer(typ, memory uint32, qbuf queuedBuffer) error {
	buf := v4l2_buffer{
		index:    qbuf.index,
		typ:      typ,
		memory:   memory,
		field:    fieldNone,
		sequence: qbuf.sequence,
		timestamp: timeval{
			sec:  qbuf.secs,
			usec: qbuf.usecs,
		},
	}

	if isMultiPlanar(typ) {
		planes := make([]v4l2_plane, len(qbuf.planes))
		for i, p := range qbuf.planes {
			planes[i].bytesused = p.bytesUsed
			planes[i].length = p.length
			if memory == memoryDmabuf {
				planes[i].setFd(int32(p.fd))
			}
		}
		buf.length = uint32(len(planes))
		buf.setPlanes(&planes[0])
		err := o.ioctl(vidiocQbuf, unsafe.Pointer(&buf))
		runtime.KeepAlive(planes)
		return err
	}

	if len(qbuf.planes) > 0 {
		buf.bytesused = qbuf.planes[0].bytesUsed
		buf.length = qbuf.planes[0].length
		if memory == memoryDmabuf {
			buf.setFd(int32(qbuf.planes[0].fd))
		}
	}
	return o.ioctl(vidiocQbuf, unsafe.Pointer(&buf))
}

func (o *ioctlOps) dequeueBuffer(typ, memory uint32, numPlanes int) (doneBuffer, error) {
	buf := v4l2_buffer{
		typ:    typ,
		memory: memory,
	}

	var planes []v4l2_plane
	if isMultiPlanar(typ) {
		planes = make([]v4l2_plane, numPlanes)
		buf.length = uint32(numPlanes)
		buf.setPlanes(&planes[0])
	}

	err := o.ioctl(vidiocDqbuf, unsafe.Pointer(&buf))
	runtime.KeepAlive(planes)
	if err != nil {
		return doneBuffer{}, err
	}

	done := doneBuffer{
		index:    buf.index,
		flags:    buf.flags,
		sequence: buf.sequence,
		secs:     buf.timestamp.sec,
		usecs:    buf.timestamp.usec,
	}
	if isMultiPlanar(typ) {
		for i := uint32(0); i < buf.length; i++ {
			done.bytesUsed = append(done.bytesUsed, planes[i].bytesused)
		}
	} else {
		done.bytesUsed = []uint32{buf.bytesused}
	}
	return done, nil
}

func (o *ioctlOps) streamOn(typ uint32) error {
	t := int32(typ)
	return o.ioctl(vidiocStreamon, unsafe.Pointer(&t))
}

func (o *ioctlOps) streamOff(typ uint32) error {
	t := int32(typ)
	return o.ioctl(vidiocStreamoff, unsafe.Pointer(&t))
}

func (o *ioctlOps) fd() int {
	return o.devfd
}

func (o *ioctlOps) close() error {
	return unix.Close(o.devfd)
}
