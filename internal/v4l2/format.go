package v4l2

import "fmt"

// PixelFormat is a FOURCC pixel format code.
type PixelFormat uint32

// Common pixel formats.
const (
	PixelFormatYUYV  PixelFormat = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	PixelFormatMJPEG PixelFormat = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	PixelFormatH264  PixelFormat = 'H' | '2'<<8 | '6'<<16 | '4'<<24
	PixelFormatNV12  PixelFormat = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
)

func (f PixelFormat) String() string {
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for i, c := range b {
		if c < 0x20 || c > 0x7e {
			b[i] = '.'
		}
	}
	return string(b[:])
}

// PlaneFormat describes one memory plane of an image format.
type PlaneFormat struct {
	BytesPerLine uint32
	SizeImage    uint32
}

// DeviceFormat is an image format negotiated with a video device. It is
// normalized over the single-planar, multi-planar and metadata kernel
// variants: single-planar formats have exactly one entry in Planes.
type DeviceFormat struct {
	Fourcc PixelFormat
	Width  uint32
	Height uint32
	Planes []PlaneFormat
}

func (f DeviceFormat) String() string {
	return fmt.Sprintf("%dx%d-%s", f.Width, f.Height, f.Fourcc)
}

// FrameSize is one discrete frame size supported for a pixel format.
type FrameSize struct {
	Width  uint32
	Height uint32
}
