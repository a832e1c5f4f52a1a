// Package capture owns the camera handle and turns its live stream into
// encoded still images on demand.
//
// Three sources are provided: DeviceSource reads a local camera through an
// ffmpeg child process, PushSource receives frames streamed by the browser
// page, and StillSource treats an image file as a camera.
package capture

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fpang/vision-weaver/internal/scene"
)

// Default resolution hint and encoding quality for captured stills.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720

	// JPEGQuality matches a canvas toDataURL('image/jpeg', 0.9) snapshot.
	JPEGQuality = 90
)

// Source is a camera stream that can be sampled into still images.
type Source interface {
	// Start acquires the stream. It is a no-op while the stream is active and
	// re-attempts acquisition from scratch after a failure.
	Start(ctx context.Context) error

	// Ready reports whether the stream is live and has delivered a frame.
	Ready() bool

	// Capture samples the current frame into a JPEG still.
	Capture() (*scene.Capture, error)

	// Stop releases the stream. Safe to call when nothing is active.
	Stop() error
}

// Status is a point-in-time view of a source for presentation.
type Status struct {
	Mode  string `json:"mode"`
	Ready bool   `json:"ready"`
	Error string `json:"error,omitempty"`
}

// Describer is implemented by sources that can report their last stream failure.
type Describer interface {
	Mode() string
	Err() error
}

// StatusOf builds a Status for any source.
func StatusOf(src Source) Status {
	st := Status{Ready: src.Ready()}
	if d, ok := src.(Describer); ok {
		st.Mode = d.Mode()
		if err := d.Err(); err != nil {
			st.Error = err.Error()
		}
	}
	return st
}

// Open resolves a camera setting into a Source:
//   - "browser" (or empty): frames are pushed by the web page
//   - "device:<name>" or a /dev/ path: a local camera read through ffmpeg
//   - any other value: an image file used as a still camera
func Open(setting string) (Source, error) {
	switch {
	case setting == "" || setting == "browser":
		return NewPushSource(), nil
	case strings.HasPrefix(setting, "device:"):
		return NewDeviceSource(DeviceConfig{Device: strings.TrimPrefix(setting, "device:")}), nil
	case strings.HasPrefix(setting, "/dev/"):
		return NewDeviceSource(DeviceConfig{Device: setting}), nil
	}

	info, err := os.Stat(setting)
	if err != nil {
		return nil, fmt.Errorf("camera %q is neither \"browser\", a device nor a readable image: %w", setting, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("camera %q is a directory, expected an image file", setting)
	}
	return NewStillSource(setting), nil
}
