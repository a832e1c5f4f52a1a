package capture

import (
	"context"
	"os"
	"sync"

	"github.com/fpang/vision-weaver/internal/scene"
)

// StillSource treats an image file as a camera. The file is re-read on
// every capture so it can be replaced while running.
type StillSource struct {
	Path      string
	MaxWidth  int
	MaxHeight int

	mu      sync.Mutex
	active  bool
	lastErr error
}

// NewStillSource creates a stopped StillSource for path.
func NewStillSource(path string) *StillSource {
	return &StillSource{Path: path, MaxWidth: DefaultWidth, MaxHeight: DefaultHeight}
}

// Mode implements Describer.
func (s *StillSource) Mode() string {
	return "file:" + s.Path
}

// Err returns the last failure from Start.
func (s *StillSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start checks that the file is readable.
func (s *StillSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}

	info, err := os.Stat(s.Path)
	if err != nil {
		s.lastErr = scene.NewError(scene.KindDeviceUnavailable, "camera", "image file not available", err)
		return s.lastErr
	}
	if info.IsDir() {
		s.lastErr = scene.Errorf(scene.KindDeviceUnavailable, "camera", "%s is a directory", s.Path)
		return s.lastErr
	}
	s.active = true
	s.lastErr = nil
	return nil
}

// Ready reports whether Start succeeded.
func (s *StillSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Capture reads and re-encodes the file. TakenAt comes from the file's EXIF
// date when present, otherwise its modification time.
func (s *StillSource) Capture() (*scene.Capture, error) {
	if !s.Ready() {
		return nil, scene.Errorf(scene.KindDevice, "capture", "Webcam is not active. Please enable it to capture an image")
	}

	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, scene.NewError(scene.KindDevice, "capture", "failed to read image file", err)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, scene.NewError(scene.KindDevice, "capture", "failed to read image file", err)
	}
	takenAt := info.ModTime()
	if t, ok := exifTakenAt(data); ok {
		takenAt = t
	}
	return Encode(data, s.MaxWidth, s.MaxHeight, takenAt)
}

// Stop marks the source inactive.
func (s *StillSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	return nil
}
