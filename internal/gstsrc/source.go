//go:build linux && (amd64 || arm64)

// Package gstsrc bridges a camera into a GStreamer pipeline through an
// appsrc element. Completed frames are pushed downstream and their
// buffers recycled into new capture requests, with pool exhaustion acting
// as back-pressure on the capture loop.
package gstsrc

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/camstack/camstack"
	"github.com/camstack/camstack/internal/logging"
	"github.com/camstack/camstack/internal/v4l2"
)

var log = logging.DefaultLogger.WithTag("gstsrc")

// Source feeds frames from one camera stream into a GStreamer pipeline.
// The camera must be acquired and configured by the caller; Source drives
// it from Start to Stop.
type Source struct {
	cam    *camstack.Camera
	stream *camstack.Stream

	pipeline *gst.Pipeline
	src      *app.Source

	pool   *Pool
	mapped map[*camstack.FrameBuffer]*v4l2.MappedFrameBuffer
}

// New builds a source for stream ending in the given downstream launch
// chain, e.g. "videoconvert ! autovideosink".
func New(cam *camstack.Camera, stream *camstack.Stream, downstream []string) (*Source, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline")
	}

	srcElem, err := gst.NewElement("appsrc")
	if err != nil {
		return nil, errors.Wrap(err, "create appsrc")
	}
	srcElem.SetProperty("is-live", true)
	srcElem.SetProperty("do-timestamp", true)

	if err := pipeline.Add(srcElem); err != nil {
		return nil, errors.Wrap(err, "assemble pipeline")
	}

	prev := srcElem
	for _, name := range downstream {
		elem, err := gst.NewElement(name)
		if err != nil {
			return nil, errors.Wrapf(err, "create %s", name)
		}
		if err := pipeline.Add(elem); err != nil {
			return nil, errors.Wrap(err, "assemble pipeline")
		}
		if err := prev.Link(elem); err != nil {
			return nil, errors.Wrapf(err, "link %s", name)
		}
		prev = elem
	}

	s := &Source{
		cam:      cam,
		stream:   stream,
		pipeline: pipeline,
		src:      app.SrcFromElement(srcElem),
		mapped:   make(map[*camstack.FrameBuffer]*v4l2.MappedFrameBuffer),
	}

	cam.OnRequestCompleted(s.requestCompleted)
	return s, nil
}

// caps translates the negotiated stream configuration into appsrc caps.
func caps(cfg camstack.StreamConfiguration) string {
	switch cfg.PixelFormat {
	case uint32(v4l2.PixelFormatMJPEG):
		return fmt.Sprintf("image/jpeg,width=%d,height=%d", cfg.Width, cfg.Height)
	case uint32(v4l2.PixelFormatNV12):
		return fmt.Sprintf("video/x-raw,format=NV12,width=%d,height=%d", cfg.Width, cfg.Height)
	default:
		return fmt.Sprintf("video/x-raw,format=YUY2,width=%d,height=%d", cfg.Width, cfg.Height)
	}
}

// Start allocates and maps the stream's buffers, primes one request per
// buffer and sets the pipeline playing.
func (s *Source) Start() error {
	cfg := s.stream.Configuration()
	s.src.SetCaps(gst.NewCapsFromString(caps(cfg)))

	buffers, err := s.cam.ExportFrameBuffers(s.stream, int(cfg.BufferCount))
	if err != nil {
		return errors.Wrap(err, "export buffers")
	}
	for _, buffer := range buffers {
		m, err := v4l2.MapFrameBuffer(buffer)
		if err != nil {
			s.unmapAll()
			return errors.Wrap(err, "map buffer")
		}
		s.mapped[buffer] = m
	}
	s.pool = NewPool(buffers)

	if err := s.cam.Start(); err != nil {
		s.unmapAll()
		return err
	}

	if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
		s.cam.Stop()
		s.unmapAll()
		return errors.Wrap(err, "start pipeline")
	}

	for i := 0; i < s.pool.Size(); i++ {
		if err := s.submitRequest(); err != nil {
			log.Warn("prime request %d: %v", i, err)
		}
	}
	return nil
}

// submitRequest queues one capture request if a buffer is available.
// Pool exhaustion is not an error: the stream simply skips this cycle.
func (s *Source) submitRequest() error {
	buffer, err := s.pool.Acquire()
	if err == ErrPoolExhausted {
		log.Trace(1, "stream %q: pool exhausted, skipping cycle", s.stream.Name())
		return nil
	}
	if err != nil {
		return err
	}

	req := s.cam.CreateRequest()
	if err := req.AddBuffer(s.stream, buffer); err != nil {
		s.pool.Release(buffer)
		return err
	}
	if err := s.cam.QueueRequest(req); err != nil {
		s.pool.Release(buffer)
		return err
	}
	return nil
}

func (s *Source) requestCompleted(req *camstack.Request) {
	buffer := req.Buffer(s.stream)
	if buffer == nil {
		return
	}

	if buffer.Metadata.Status == camstack.FrameSuccess {
		s.push(buffer)
	}
	s.pool.Release(buffer)

	if req.Status() == camstack.RequestCancelled {
		return
	}
	if err := s.submitRequest(); err != nil {
		log.Error("resubmit: %v", err)
	}
}

func (s *Source) push(buffer *camstack.FrameBuffer) {
	m := s.mapped[buffer]
	if m == nil || len(m.Planes()) == 0 {
		return
	}

	// packed formats only, so one plane carries the whole frame
	data := m.Planes()[0]
	used := buffer.Metadata.Planes[0].BytesUsed
	if int(used) < len(data) {
		data = data[:used]
	}

	if ret := s.src.PushBuffer(gst.NewBufferFromBytes(data)); ret != gst.FlowOK {
		log.Warn("push frame %d: flow %v", buffer.Metadata.Sequence, ret)
	}
}

// Stop halts capture, flushes the pipeline and releases the mappings.
func (s *Source) Stop() error {
	err := s.cam.Stop()

	s.src.EndStream()
	s.pipeline.SetState(gst.StateNull)
	s.unmapAll()
	return err
}

func (s *Source) unmapAll() {
	for buffer, m := range s.mapped {
		m.Close()
		delete(s.mapped, buffer)
	}
}
