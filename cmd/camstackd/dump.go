//go:build linux && (amd64 || arm64)

package main

import (
	"os"

	"github.com/pkg/errors"

	"github.com/camstack/camstack"
	"github.com/camstack/camstack/internal/v4l2"
)

// dumper drives a camera in a simple mmap capture loop and appends each
// completed frame to a file. With a zero limit it runs until the event
// loop is stopped.
type dumper struct {
	mgr    *camstack.CameraManager
	cam    *camstack.Camera
	stream *camstack.Stream

	out    *os.File
	limit  int
	frames int

	mapped map[*camstack.FrameBuffer]*v4l2.MappedFrameBuffer
}

func newDumper(mgr *camstack.CameraManager, cam *camstack.Camera, stream *camstack.Stream, path string, limit int) (*dumper, error) {
	d := &dumper{
		mgr:    mgr,
		cam:    cam,
		stream: stream,
		limit:  limit,
		mapped: make(map[*camstack.FrameBuffer]*v4l2.MappedFrameBuffer),
	}
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, errors.Wrap(err, "create output file")
		}
		d.out = f
	}

	cam.OnRequestCompleted(d.requestCompleted)
	return d, nil
}

// Start allocates and maps the stream's buffers, starts the camera and
// queues one request per buffer.
func (d *dumper) Start() error {
	cfg := d.stream.Configuration()
	buffers, err := d.cam.ExportFrameBuffers(d.stream, int(cfg.BufferCount))
	if err != nil {
		return errors.Wrap(err, "export buffers")
	}
	for _, buffer := range buffers {
		m, err := v4l2.MapFrameBuffer(buffer)
		if err != nil {
			d.unmapAll()
			return errors.Wrap(err, "map buffer")
		}
		d.mapped[buffer] = m
	}

	if err := d.cam.Start(); err != nil {
		d.unmapAll()
		return err
	}

	for _, buffer := range buffers {
		if err := d.queueBuffer(buffer); err != nil {
			return err
		}
	}
	return nil
}

func (d *dumper) queueBuffer(buffer *camstack.FrameBuffer) error {
	req := d.cam.CreateRequest()
	if err := req.AddBuffer(d.stream, buffer); err != nil {
		return err
	}
	return d.cam.QueueRequest(req)
}

func (d *dumper) requestCompleted(req *camstack.Request) {
	if req.Status() == camstack.RequestCancelled {
		return
	}

	buffer := req.Buffer(d.stream)
	meta := buffer.Metadata

	if meta.Status == camstack.FrameSuccess && d.out != nil {
		d.writeFrame(buffer)
	} else if meta.Status == camstack.FrameError {
		log.Warn("frame %d completed with error", meta.Sequence)
	}

	d.frames++
	if d.limit > 0 && d.frames >= d.limit {
		log.Info("captured %d frames", d.frames)
		// Stop after the completion has fully unwound, so any requests
		// completing in the same dispatch batch are still delivered.
		d.mgr.Loop().Call(d.mgr.Stop)
		return
	}

	if err := d.queueBuffer(buffer); err != nil {
		log.Error("requeue buffer: %v", err)
	}
}

func (d *dumper) writeFrame(buffer *camstack.FrameBuffer) {
	meta := buffer.Metadata
	data := d.mapped[buffer].Planes()[0]
	if n := int(meta.Planes[0].BytesUsed); n > 0 && n < len(data) {
		data = data[:n]
	}
	if _, err := d.out.Write(data); err != nil {
		log.Error("write frame %d: %v", meta.Sequence, err)
	}
}

// Stop halts the camera and releases the mappings. Frames already written
// stay in the output file.
func (d *dumper) Stop() error {
	err := d.cam.Stop()
	d.unmapAll()

	if d.out != nil {
		if cerr := d.out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (d *dumper) unmapAll() {
	for _, m := range d.mapped {
		m.Close()
	}
	d.mapped = make(map[*camstack.FrameBuffer]*v4l2.MappedFrameBuffer)
}
