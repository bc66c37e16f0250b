//go:build linux && (amd64 || arm64)

// Package unicam is the pipeline handler for Raspberry Pi cameras: a CSI-2
// receiver (the unicam DMA engine) fed by a sensor entity, exposing a
// single raw capture stream.
package unicam

import (
	"github.com/pkg/errors"

	"github.com/camstack/camstack"
	"github.com/camstack/camstack/internal/ipa"
	"github.com/camstack/camstack/internal/logging"
	"github.com/camstack/camstack/internal/mediagraph"
	"github.com/camstack/camstack/internal/v4l2"
)

var log = logging.DefaultLogger.WithTag("unicam")

const (
	handlerName = "unicam"

	defaultBufferCount = 4
)

// Factory returns the handler factory for registration with the camera
// manager.
func Factory() camstack.HandlerFactory {
	return camstack.HandlerFactory{
		Name: handlerName,
		New: func(mgr *camstack.CameraManager) camstack.Handler {
			return &handler{
				Pipeline: mgr.Pipeline(),
				mgr:      mgr,
				cameras:  make(map[*camstack.Camera]*cameraData),
			}
		},
	}
}

type handler struct {
	*camstack.Pipeline
	mgr     *camstack.CameraManager
	cameras map[*camstack.Camera]*cameraData
}

type cameraData struct {
	video  *v4l2.VideoDevice
	sensor *mediagraph.Entity
	stream *camstack.Stream
	router *ipa.Router
}

func (h *handler) Name() string {
	return handlerName
}

// Match claims media graphs driven by the unicam CSI-2 receiver. One
// camera is registered per graph, named after its sensor entity.
func (h *handler) Match(graph *mediagraph.Graph) bool {
	if graph.Driver != "unicam" {
		return false
	}

	capture := graph.DefaultCapture()
	if capture == nil {
		log.Warn("unicam graph has no capture node")
		return false
	}

	sensors := graph.EntitiesByFunction(mediagraph.FunctionSensor)
	if len(sensors) == 0 {
		log.Warn("unicam graph has no sensor entity")
		return false
	}
	sensor := sensors[0]

	video, err := v4l2.Open(capture.DevNode, h.mgr.Loop())
	if err != nil {
		log.Error("open %s: %v", capture.DevNode, err)
		return false
	}

	data := &cameraData{
		video:  video,
		sensor: sensor,
		stream: camstack.NewStream("raw"),
	}
	data.router = ipa.NewRouter(func(ev ipa.Event) { h.frameAction(data, ev) })

	cam := camstack.NewCamera(sensor.Name, h, []*camstack.Stream{data.stream})
	video.OnBufferReady(func(buffer *camstack.FrameBuffer) {
		h.videoReady(cam, buffer)
	})

	h.cameras[cam] = data
	h.mgr.AddCamera(cam)
	return true
}

func (h *handler) Configure(cam *camstack.Camera, cfgs map[*camstack.Stream]camstack.StreamConfiguration) error {
	data := h.cameras[cam]

	cfg, ok := cfgs[data.stream]
	if !ok || len(cfgs) != 1 {
		return errors.Errorf("%s supports exactly the raw stream", handlerName)
	}

	requested := v4l2.DeviceFormat{
		Fourcc: v4l2.PixelFormat(cfg.PixelFormat),
		Width:  cfg.Width,
		Height: cfg.Height,
		Planes: []v4l2.PlaneFormat{{
			BytesPerLine: cfg.Stride,
			SizeImage:    cfg.FrameSize,
		}},
	}

	formats, err := data.video.Formats()
	if err != nil {
		return errors.Wrapf(err, "enumerate formats on %s", data.video.DevNode())
	}
	supported := false
	for _, f := range formats {
		if f == requested.Fourcc {
			supported = true
			break
		}
	}
	if !supported {
		return errors.Errorf("%s does not support %s", data.video.DevNode(), requested.Fourcc)
	}

	// TRY_FMT lets the driver adjust sizes and strides without touching
	// device state; the adjusted format is then latched.
	adjusted, err := data.video.TryFormat(requested)
	if err != nil {
		return err
	}
	accepted, err := data.video.SetFormat(adjusted)
	if err != nil {
		return err
	}

	cfg.PixelFormat = uint32(accepted.Fourcc)
	cfg.Width = accepted.Width
	cfg.Height = accepted.Height
	if len(accepted.Planes) > 0 {
		cfg.Stride = accepted.Planes[0].BytesPerLine
		cfg.FrameSize = accepted.Planes[0].SizeImage
	}
	if cfg.BufferCount == 0 {
		cfg.BufferCount = defaultBufferCount
	}
	data.stream.SetConfiguration(cfg)

	log.Info("camera %q configured: %s", cam.Name(), cfg)
	return nil
}

func (h *handler) ExportFrameBuffers(cam *camstack.Camera, stream *camstack.Stream, count int) ([]*camstack.FrameBuffer, error) {
	data := h.cameras[cam]
	if stream != data.stream {
		return nil, errors.Errorf("unknown stream %q", stream.Name())
	}
	return data.video.ExportBuffers(count)
}

func (h *handler) Start(cam *camstack.Camera) error {
	data := h.cameras[cam]

	// Buffers were either exported through the device already or will be
	// supplied by the application per request.
	if !data.video.HasBuffers() {
		count := int(data.stream.Configuration().BufferCount)
		if count == 0 {
			count = defaultBufferCount
		}
		if err := data.video.ImportBuffers(count); err != nil {
			return err
		}
	}

	if err := data.video.StreamOn(); err != nil {
		data.video.ReleaseBuffers()
		return err
	}
	return nil
}

func (h *handler) Stop(cam *camstack.Camera) {
	data := h.cameras[cam]

	// Cancelling the in-flight buffers drives the completion path for
	// every queued request before StreamOff returns.
	if err := data.video.StreamOff(); err != nil {
		log.Error("camera %q: %v", cam.Name(), err)
	}
	if err := data.video.ReleaseBuffers(); err != nil {
		log.Error("camera %q: %v", cam.Name(), err)
	}
}

func (h *handler) QueueRequestDevice(cam *camstack.Camera, req *camstack.Request) error {
	data := h.cameras[cam]

	buffer := req.Buffer(data.stream)
	if buffer == nil {
		return errors.Errorf("%s carries no buffer for the raw stream", req)
	}
	return data.video.QueueBuffer(buffer)
}

// SubmitFrameAction feeds an algorithm event for cam into the completion
// path. Metadata events are deferred until their frame's buffer completes.
func (h *handler) SubmitFrameAction(cam *camstack.Camera, ev ipa.Event) {
	if data, ok := h.cameras[cam]; ok {
		data.router.Submit(ev)
	}
}

func (h *handler) frameAction(data *cameraData, ev ipa.Event) {
	switch ev.Op {
	case ipa.OpSetControls:
		// The sensor subdevice has no control interface wired up yet;
		// record the intent so tuning work is visible in traces.
		log.Debug("sensor %q: deferred control update for frame %d",
			data.sensor.Name, ev.Frame)
	case ipa.OpParamsFilled:
		log.Trace(1, "frame %d: parameters filled", ev.Frame)
	case ipa.OpMetadataReady:
		log.Debug("frame %d: metadata ready", ev.Frame)
	default:
		log.Warn("unknown frame action %v", ev.Op)
	}
}

func (h *handler) videoReady(cam *camstack.Camera, buffer *camstack.FrameBuffer) {
	data := h.cameras[cam]

	req := h.RequestForBuffer(cam, buffer)
	if req == nil {
		log.Error("camera %q: completion for unqueued buffer", cam.Name())
		return
	}

	data.router.BufferComplete(buffer.Metadata.Sequence)

	done, err := h.CompleteBuffer(cam, req, buffer)
	if err != nil {
		log.Error("camera %q: %v", cam.Name(), err)
		return
	}
	if done {
		h.CompleteRequest(cam, req)
		data.router.ForgetFrame(buffer.Metadata.Sequence)
	}
}
