//go:build linux && (amd64 || arm64)

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/camstack/camstack"
	"github.com/camstack/camstack/internal/event"
	"github.com/camstack/camstack/internal/gstsrc"
	"github.com/camstack/camstack/internal/logging"
	"github.com/camstack/camstack/internal/mediagraph"
	"github.com/camstack/camstack/internal/pipeline/unicam"
	"github.com/camstack/camstack/internal/v4l2"
)

var log = logging.DefaultLogger.WithTag("camstackd")

// Populated via -ldflags="-X ..." at build time.
var GitRevisionId string

var (
	flagDevice  string
	flagSensor  string
	flagFormat  string
	flagWidth   int
	flagHeight  int
	flagBuffers int
	flagCount   int
	flagOutput  string
	flagGst     string
	flagList    bool
	flagFormats bool
	flagHelp    bool
	flagVersion bool
)

func init() {
	flag.StringVarP(&flagDevice, "device", "d", "/dev/video0", "Capture device node")
	flag.StringVarP(&flagSensor, "sensor", "s", "imx219", "Sensor entity name")
	flag.StringVarP(&flagFormat, "format", "f", "YUYV", "Pixel format fourcc")
	flag.IntVarP(&flagWidth, "width", "x", 1280, "Frame width")
	flag.IntVarP(&flagHeight, "height", "y", 720, "Frame height")
	flag.IntVarP(&flagBuffers, "buffers", "n", 4, "Number of frame buffers")
	flag.IntVarP(&flagCount, "count", "c", 0, "Stop after this many frames")
	flag.StringVarP(&flagOutput, "output", "o", "", "Write raw frames to this file")
	flag.StringVarP(&flagGst, "gst", "g", "", "Downstream GStreamer elements")
	flag.BoolVarP(&flagList, "list", "l", false, "List detected cameras and exit")
	flag.BoolVarP(&flagFormats, "formats", "F", false, "List the device's formats and frame sizes and exit")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

// session is one capture mode: either the GStreamer bridge or the raw
// frame dumper.
type session interface {
	Start() error
	Stop() error
}

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		fmt.Println("camstackd", GitRevisionId)
		os.Exit(0)
	}

	if err := run(); err != nil {
		log.Fatal("%v", err)
	}
}

// parseFourcc turns a four-character code like "YUYV" into its packed
// little-endian representation.
func parseFourcc(s string) (uint32, error) {
	if len(s) != 4 {
		return 0, errors.Errorf("invalid fourcc %q", s)
	}
	return uint32(s[0]) | uint32(s[1])<<8 | uint32(s[2])<<16 | uint32(s[3])<<24, nil
}

// captureGraph describes the unicam topology named on the command line:
// a sensor entity feeding the CSI-2 receiver's capture node.
func captureGraph() *mediagraph.Graph {
	return &mediagraph.Graph{
		Driver: "unicam",
		Model:  flagSensor,
		Entities: []*mediagraph.Entity{
			{
				Name:     flagSensor,
				Function: mediagraph.FunctionSensor,
				Pads:     []mediagraph.Pad{{Index: 0, Direction: mediagraph.PadSource}},
			},
			{
				Name:     "unicam-image",
				Function: mediagraph.FunctionCapture,
				DevNode:  flagDevice,
				Pads:     []mediagraph.Pad{{Index: 0, Direction: mediagraph.PadSink}},
			},
		},
	}
}

// listFormats opens the capture node directly and prints each supported
// pixel format with its frame sizes.
func listFormats() error {
	loop, err := event.NewLoop()
	if err != nil {
		return err
	}
	defer loop.Close()

	dev, err := v4l2.Open(flagDevice, loop)
	if err != nil {
		return err
	}
	defer dev.Close()

	formats, err := dev.Formats()
	if err != nil {
		return errors.Wrapf(err, "enumerate formats on %s", flagDevice)
	}
	for _, f := range formats {
		sizes, err := dev.FrameSizes(f)
		if err != nil {
			return errors.Wrapf(err, "enumerate frame sizes for %s", f)
		}
		fmt.Printf("%s:", f)
		for _, s := range sizes {
			fmt.Printf(" %dx%d", s.Width, s.Height)
		}
		fmt.Println()
	}
	return nil
}

func run() error {
	if flagFormats {
		return listFormats()
	}

	mgr, err := camstack.NewCameraManager([]camstack.HandlerFactory{unicam.Factory()})
	if err != nil {
		return err
	}
	defer mgr.Close()

	if !mgr.AddGraph(captureGraph()) {
		return errors.Errorf("no pipeline handler claims %s", flagDevice)
	}

	if flagList {
		for _, cam := range mgr.Cameras() {
			fmt.Println(cam.Name())
		}
		return nil
	}

	cams := mgr.Cameras()
	if len(cams) == 0 {
		return errors.New("no cameras detected")
	}
	cam := cams[0]

	if err := cam.Acquire(); err != nil {
		return err
	}
	defer cam.Release()

	fourcc, err := parseFourcc(flagFormat)
	if err != nil {
		return err
	}
	stream := cam.Streams()[0]
	err = cam.Configure(map[*camstack.Stream]camstack.StreamConfiguration{
		stream: {
			PixelFormat: fourcc,
			Width:       uint32(flagWidth),
			Height:      uint32(flagHeight),
			BufferCount: uint32(flagBuffers),
		},
	})
	if err != nil {
		return errors.Wrap(err, "configure camera")
	}
	log.Info("camera %q configured: %s", cam.Name(), stream.Configuration())

	var sess session
	if flagGst != "" {
		sess, err = gstsrc.New(cam, stream, strings.Split(flagGst, ","))
		if err != nil {
			return errors.Wrap(err, "build GStreamer pipeline")
		}
	} else {
		sess, err = newDumper(mgr, cam, stream, flagOutput, flagCount)
		if err != nil {
			return err
		}
	}

	if err := sess.Start(); err != nil {
		return errors.Wrap(err, "start capture")
	}

	// Stop the event loop on SIGINT or SIGTERM. Capture teardown runs on
	// the main goroutine once the loop has drained.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("received %s, shutting down", sig)
		mgr.Stop()
	}()

	mgr.Run()

	return sess.Stop()
}
