//go:build linux && (amd64 || arm64)

package v4l2

import "unsafe"

// Kernel ABI mirror of include/uapi/linux/videodev2.h, 64-bit layout.
//
// Struct sizes are pinned with compile-time assertions: an array of
// [unsafe.Sizeof(x) - expected]struct{} only compiles when the two agree.
var (
	_ [0]struct{} = [unsafe.Sizeof(v4l2_capability{}) - 104]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_fmtdesc{}) - 64]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_frmsizeenum{}) - 44]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_pix_format{}) - 48]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_pix_format_mplane{}) - 192]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_meta_format{}) - 8]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_format{}) - 208]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_requestbuffers{}) - 20]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_plane{}) - 64]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_buffer{}) - 88]struct{}{}
	_ [0]struct{} = [unsafe.Sizeof(v4l2_exportbuffer{}) - 64]struct{}{}
)

// Buffer types.
const (
	bufTypeVideoCapture       = 1
	bufTypeVideoOutput        = 2
	bufTypeVideoCaptureMplane = 9
	bufTypeVideoOutputMplane  = 10
	bufTypeMetaCapture        = 13
	bufTypeMetaOutput         = 14
)

// Memory types.
const (
	memoryMmap    = 1
	memoryUserptr = 2
	memoryDmabuf  = 4
)

// v4l2_buffer flags.
const (
	bufFlagMapped = 0x00000001
	bufFlagQueued = 0x00000002
	bufFlagDone   = 0x00000004
	bufFlagError  = 0x00000040
)

const fieldNone = 1

// ioctl request encoding, asm-generic/ioctl.h.
const (
	iocWrite = 1
	iocRead  = 2

	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

func ioR(typ, nr, size uintptr) uintptr  { return ioc(iocRead, typ, nr, size) }
func ioW(typ, nr, size uintptr) uintptr  { return ioc(iocWrite, typ, nr, size) }
func ioWR(typ, nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, typ, nr, size) }

// Request codes are computed from the struct sizes rather than hardcoded,
// so they stay correct if the ABI structs above change.
var (
	vidiocQuerycap       = ioR('V', 0, unsafe.Sizeof(v4l2_capability{}))
	vidiocEnumFmt        = ioWR('V', 2, unsafe.Sizeof(v4l2_fmtdesc{}))
	vidiocGFmt           = ioWR('V', 4, unsafe.Sizeof(v4l2_format{}))
	vidiocSFmt           = ioWR('V', 5, unsafe.Sizeof(v4l2_format{}))
	vidiocReqbufs        = ioWR('V', 8, unsafe.Sizeof(v4l2_requestbuffers{}))
	vidiocQuerybuf       = ioWR('V', 9, unsafe.Sizeof(v4l2_buffer{}))
	vidiocQbuf           = ioWR('V', 15, unsafe.Sizeof(v4l2_buffer{}))
	vidiocExpbuf         = ioWR('V', 16, unsafe.Sizeof(v4l2_exportbuffer{}))
	vidiocDqbuf          = ioWR('V', 17, unsafe.Sizeof(v4l2_buffer{}))
	vidiocStreamon       = ioW('V', 18, unsafe.Sizeof(int32(0)))
	vidiocStreamoff      = ioW('V', 19, unsafe.Sizeof(int32(0)))
	vidiocEnumFramesizes = ioWR('V', 74, unsafe.Sizeof(v4l2_frmsizeenum{}))
	vidiocTryFmt         = ioWR('V', 64, unsafe.Sizeof(v4l2_format{}))
)

type v4l2_capability struct {
	driver       [16]byte
	card         [32]byte
	bus_info     [32]byte
	version      uint32
	capabilities uint32
	device_caps  uint32
	reserved     [3]uint32
}

type v4l2_fmtdesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelformat uint32
	mbus_code   uint32
	reserved    [3]uint32
}

type v4l2_frmsize_discrete struct {
	width  uint32
	height uint32
}

type v4l2_frmsize_stepwise struct {
	min_width   uint32
	max_width   uint32
	step_width  uint32
	min_height  uint32
	max_height  uint32
	step_height uint32
}

type v4l2_frmsizeenum struct {
	index       uint32
	pixelformat uint32
	typ         uint32
	// union of v4l2_frmsize_discrete and v4l2_frmsize_stepwise
	m        [24]byte
	reserved [2]uint32
}

const (
	frmsizeTypeDiscrete = 1
)

func (e *v4l2_frmsizeenum) discrete() v4l2_frmsize_discrete {
	return *(*v4l2_frmsize_discrete)(unsafe.Pointer(&e.m))
}

func (e *v4l2_frmsizeenum) stepwise() v4l2_frmsize_stepwise {
	return *(*v4l2_frmsize_stepwise)(unsafe.Pointer(&e.m))
}

type v4l2_pix_format struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcr_enc    uint32
	quantization uint32
	xfer_func    uint32
}

type v4l2_plane_pix_format struct {
	sizeimage    uint32
	bytesperline uint32
	reserved     [6]uint16
}

type v4l2_pix_format_mplane struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	colorspace   uint32
	plane_fmt    [8]v4l2_plane_pix_format
	num_planes   uint8
	flags        uint8
	ycbcr_enc    uint8
	quantization uint8
	xfer_func    uint8
	reserved     [7]uint8
}

type v4l2_meta_format struct {
	dataformat uint32
	buffersize uint32
}

// v4l2_format carries a 200-byte union after the type field. The accessors
// below view the union as the member selected by the buffer type.
type v4l2_format struct {
	typ uint32
	_   [4]byte // union is pointer-aligned
	fmt [200]byte
}

func (f *v4l2_format) pix() *v4l2_pix_format {
	return (*v4l2_pix_format)(unsafe.Pointer(&f.fmt))
}

func (f *v4l2_format) pixMplane() *v4l2_pix_format_mplane {
	return (*v4l2_pix_format_mplane)(unsafe.Pointer(&f.fmt))
}

func (f *v4l2_format) meta() *v4l2_meta_format {
	return (*v4l2_meta_format)(unsafe.Pointer(&f.fmt))
}

type v4l2_requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

// v4l2_plane's m union holds mem_offset for MMAP buffers and fd for
// DMABUF buffers.
type v4l2_plane struct {
	bytesused   uint32
	length      uint32
	m           [8]byte
	data_offset uint32
	reserved    [11]uint32
}

func (p *v4l2_plane) memOffset() uint32 { return *(*uint32)(unsafe.Pointer(&p.m)) }
func (p *v4l2_plane) setFd(fd int32)    { *(*int32)(unsafe.Pointer(&p.m)) = fd }

type v4l2_timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

type timeval struct {
	sec  int64
	usec int64
}

// v4l2_buffer's m union holds mem_offset (MMAP), fd (DMABUF), or a pointer
// to a v4l2_plane array (multi-planar).
type v4l2_buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	_         [4]byte // timestamp is 8-byte aligned
	timestamp timeval
	timecode  v4l2_timecode
	sequence  uint32
	memory    uint32
	m         [8]byte
	length    uint32
	reserved2 uint32
	_         [4]byte
}

func (b *v4l2_buffer) memOffset() uint32 { return *(*uint32)(unsafe.Pointer(&b.m)) }
func (b *v4l2_buffer) setFd(fd int32)    { *(*int32)(unsafe.Pointer(&b.m)) = fd }

func (b *v4l2_buffer) setPlanes(planes *v4l2_plane) {
	*(*uintptr)(unsafe.Pointer(&b.m)) = uintptr(unsafe.Pointer(planes))
}

type v4l2_exportbuffer struct {
	typ      uint32
	index    uint32
	plane    uint32
	flags    uint32
	fd       int32
	reserved [11]uint32
}
