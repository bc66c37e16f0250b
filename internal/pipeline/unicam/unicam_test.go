//go:build linux && (amd64 || arm64)

package unicam

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/camstack/camstack"
	"github.com/camstack/camstack/internal/mediagraph"
)

func newTestHandler(t *testing.T) (camstack.Handler, *camstack.CameraManager) {
	t.Helper()
	mgr, err := camstack.NewCameraManager([]camstack.HandlerFactory{Factory()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { mgr.Close() })
	return Factory().New(mgr), mgr
}

func TestMatchRejectsForeignDriver(t *testing.T) {
	h, _ := newTestHandler(t)

	claimed := h.Match(&mediagraph.Graph{
		Driver: "uvcvideo",
		Entities: []*mediagraph.Entity{
			{Name: "cam", Function: mediagraph.FunctionCapture, DevNode: "/dev/video9"},
		},
	})
	assert.False(t, claimed)
}

func TestMatchRequiresCaptureNode(t *testing.T) {
	h, _ := newTestHandler(t)

	claimed := h.Match(&mediagraph.Graph{
		Driver: "unicam",
		Entities: []*mediagraph.Entity{
			{Name: "imx219", Function: mediagraph.FunctionSensor},
		},
	})
	assert.False(t, claimed)
}

func TestMatchRequiresSensorEntity(t *testing.T) {
	h, _ := newTestHandler(t)

	claimed := h.Match(&mediagraph.Graph{
		Driver: "unicam",
		Entities: []*mediagraph.Entity{
			{Name: "unicam-image", Function: mediagraph.FunctionCapture, DevNode: "/dev/video9"},
		},
	})
	assert.False(t, claimed)
}
