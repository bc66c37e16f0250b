package v4l2

import "bytes"

// Capability flags from the kernel capability query.
const (
	capVideoCapture       = 0x00000001
	capVideoOutput        = 0x00000002
	capVideoCaptureMplane = 0x00001000
	capVideoOutputMplane  = 0x00002000
	capVideoM2MMplane     = 0x00004000
	capVideoM2M           = 0x00008000
	capMetaCapture        = 0x00800000
	capMetaOutput         = 0x08000000
	capStreaming          = 0x04000000
	capDeviceCaps         = 0x80000000
)

// Capability reports what a video device node can do, as returned by the
// kernel's capability query.
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Version uint32

	caps uint32
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (c Capability) IsVideoCapture() bool {
	return c.caps&(capVideoCapture|capVideoCaptureMplane|capVideoM2M|capVideoM2MMplane) != 0
}

func (c Capability) IsVideoOutput() bool {
	return c.caps&(capVideoOutput|capVideoOutputMplane|capVideoM2M|capVideoM2MMplane) != 0
}

func (c Capability) IsMetaCapture() bool { return c.caps&capMetaCapture != 0 }
func (c Capability) IsMetaOutput() bool  { return c.caps&capMetaOutput != 0 }

func (c Capability) IsMultiplanar() bool {
	return c.caps&(capVideoCaptureMplane|capVideoOutputMplane|capVideoM2MMplane) != 0
}

func (c Capability) HasStreaming() bool { return c.caps&capStreaming != 0 }
