package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fpang/vision-weaver/internal/scene"
	"github.com/rs/zerolog/log"
)

// DefaultStaleAfter is how old the newest pushed frame may be before the
// stream is considered stalled.
const DefaultStaleAfter = 5 * time.Second

// PushSource is a Source fed by frames streamed from the browser's webcam.
// The browser owns the physical device; the server only sees frames.
type PushSource struct {
	MaxWidth   int
	MaxHeight  int
	StaleAfter time.Duration

	now func() time.Time

	mu       sync.Mutex
	active   bool
	latest   []byte
	latestAt time.Time
	lastErr  error
}

// NewPushSource creates a stopped PushSource with the default resolution hint.
func NewPushSource() *PushSource {
	return &PushSource{
		MaxWidth:   DefaultWidth,
		MaxHeight:  DefaultHeight,
		StaleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// Mode implements Describer.
func (p *PushSource) Mode() string {
	return "browser"
}

// Err returns the last failure reported by the browser.
func (p *PushSource) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Start opens the stream for incoming frames. Restarting after a reported
// failure discards the failure and any buffered frame.
func (p *PushSource) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active && p.lastErr == nil {
		return nil
	}
	p.active = true
	p.latest = nil
	p.lastErr = nil
	log.Debug().Msg("Browser camera stream opened")
	return nil
}

// Push stores a raw encoded frame as the current frame.
func (p *PushSource) Push(frame []byte, mimeType string) error {
	if len(frame) == 0 {
		return scene.Errorf(scene.KindFormat, "push frame", "frame is empty")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return scene.Errorf(scene.KindFormat, "push frame", "unsupported frame type %q", mimeType)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return scene.Errorf(scene.KindDevice, "push frame", "camera stream is not started")
	}
	p.latest = append(p.latest[:0], frame...)
	p.latestAt = p.now()
	p.lastErr = nil
	return nil
}

// PushDataURL stores a frame sent as a data URL (canvas.toDataURL output).
func (p *PushSource) PushDataURL(dataURL string) error {
	data, mimeType, err := scene.ParseDataURL(dataURL)
	if err != nil {
		return err
	}
	return p.Push(data, mimeType)
}

// Fail records a camera failure reported by the browser (getUserMedia error
// name plus message) and closes the stream until the next Start.
func (p *PushSource) Fail(name, message string) error {
	err := browserCameraError(name, message)

	p.mu.Lock()
	p.active = false
	p.latest = nil
	p.lastErr = err
	p.mu.Unlock()

	log.Warn().Str("name", name).Str("message", message).Msg("Browser reported camera failure")
	return err
}

// Ready reports whether the stream is open and a fresh frame is buffered.
func (p *PushSource) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active && p.latest != nil && !p.staleLocked()
}

// Capture re-encodes the newest pushed frame.
func (p *PushSource) Capture() (*scene.Capture, error) {
	p.mu.Lock()
	if p.lastErr != nil {
		err := p.lastErr
		p.mu.Unlock()
		return nil, err
	}
	if !p.active {
		p.mu.Unlock()
		return nil, scene.Errorf(scene.KindDevice, "capture", "Webcam is not active. Please enable it to capture an image")
	}
	if p.latest == nil {
		p.mu.Unlock()
		return nil, scene.Errorf(scene.KindDevice, "capture", "Webcam is still initializing, no frame received yet")
	}
	if p.staleLocked() {
		age := p.now().Sub(p.latestAt)
		p.mu.Unlock()
		return nil, scene.Errorf(scene.KindDevice, "capture", "Webcam stream stalled, last frame is %s old", age.Round(time.Second))
	}
	frame := make([]byte, len(p.latest))
	copy(frame, p.latest)
	at := p.latestAt
	p.mu.Unlock()

	return Encode(frame, p.MaxWidth, p.MaxHeight, at)
}

// Stop closes the stream and drops the buffered frame.
func (p *PushSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	p.latest = nil
	return nil
}

func (p *PushSource) staleLocked() bool {
	return p.StaleAfter > 0 && p.now().Sub(p.latestAt) > p.StaleAfter
}

// browserCameraError maps getUserMedia DOMException names to camera errors.
func browserCameraError(name, message string) *scene.Error {
	switch name {
	case "NotAllowedError", "PermissionDeniedError":
		return scene.Errorf(scene.KindDeviceUnavailable, "camera", "Webcam permission denied. Please grant access in your browser settings")
	case "NotFoundError", "DevicesNotFoundError":
		return scene.Errorf(scene.KindDeviceUnavailable, "camera", "No webcam found. Please ensure a camera is connected and enabled")
	case "NotSupportedError":
		return scene.Errorf(scene.KindDeviceUnavailable, "camera", "Webcam not supported by this browser")
	case "NotReadableError", "PlayError":
		return scene.Errorf(scene.KindDevice, "camera", "Could not start webcam video. Please ensure permissions are granted and no other app is using the camera")
	}
	if message == "" {
		return scene.Errorf(scene.KindDevice, "camera", "An unknown error occurred while accessing the webcam")
	}
	return scene.Errorf(scene.KindDevice, "camera", "Error accessing webcam: %s", message)
}
