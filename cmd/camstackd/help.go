//go:build linux && (amd64 || arm64)

package main

import (
	"fmt"

	"github.com/fatih/color"
)

const helpString = `Capture pipeline daemon for CSI-2 camera modules

Usage: camstackd [OPTION]...

Camera:
  -d, --device=FILE      Capture device node (default: /dev/video0)
  -s, --sensor=NAME      Sensor entity name (default: imx219)
  -l, --list             List detected cameras and exit
  -F, --formats          List the device's formats and frame sizes and exit

Stream:
  -f, --format=FOURCC    Pixel format fourcc (default: YUYV)
  -x, --width=NUM        Frame width, in pixels (default: 1280)
  -y, --height=NUM       Frame height, in pixels (default: 720)
  -n, --buffers=NUM      Number of frame buffers (default: 4)

Capture:
  -c, --count=NUM        Stop after NUM frames, 0 for unlimited (default: 0)
  -o, --output=FILE      Write raw frames to FILE
  -g, --gst=ELEMENTS     Comma-separated GStreamer elements appended after the
                           camera source, e.g. videoconvert,autovideosink

Miscellaneous:
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits`

//   ___  __ _  _ __ ___   ___ | |_  __ _  ___ | | __
//  / __|/ _` || '_ ` _ \ / __|| __|/ _` |/ __|| |/ /
// | (__| (_| || | | | | |\__ \| |_| (_| || (__|   <
//  \___|\__,_||_| |_| |_||___/ \__|\__,_| \___||_|\_\
var banner = [...][5]string{
	{"       ", "  ___  ", " / __| ", "| (__  ", " \\___| "}, // c
	{"       ", "  __ _ ", " / _` |", "| (_| |", " \\__,_|"}, // a
	{"            ", "  _ __ ___  ", " | '_ ` _ \\ ", " | | | | | |", " |_| |_| |_|"}, // m
	{"      ", "  ___ ", " / __|", " \\__ \\", " |___/"}, // s
	{"  _   ", " | |_ ", " | __|", " | |_ ", "  \\__|"}, // t
	{"       ", "  __ _ ", " / _` |", "| (_| |", " \\__,_|"}, // a
	{"       ", "  ___  ", " / __| ", "| (__  ", " \\___| "}, // c
	{" _     ", "| | __ ", "| |/ / ", "|   <  ", "|_|\\_\\ "}, // k
}

// Help information is printed and program exits
func help() {
	palette := []*color.Color{
		color.New(color.FgRed),
		color.New(color.FgYellow),
		color.New(color.FgCyan),
	}

	for row := 0; row < 5; row++ {
		for i, letter := range banner {
			palette[i%len(palette)].Print(letter[row])
		}
		fmt.Println()
	}
	fmt.Println()
	fmt.Println(helpString)
}
