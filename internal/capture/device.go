package capture

// device.go reads a local camera through an ffmpeg child process that
// streams MJPEG to a pipe. The latest complete frame is kept in memory and
// re-encoded on Capture. Killing the process releases the device.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fpang/vision-weaver/internal/scene"
	"github.com/rs/zerolog/log"
)

// Device capture defaults.
const (
	// DefaultFrameRate is the requested camera frame rate. Stills only need
	// the latest frame, so a low rate keeps the pipe cheap.
	DefaultFrameRate = 15

	// DefaultFirstFrameTimeout bounds how long Start waits for the camera to
	// deliver its first frame.
	DefaultFirstFrameTimeout = 10 * time.Second

	// streamJPEGQuality is ffmpeg's -q:v for the MJPEG pipe (2 = best, 31 = worst).
	streamJPEGQuality = 3

	stderrTailSize = 4096
)

// DeviceConfig selects a local camera.
type DeviceConfig struct {
	// Device is the platform device name: "/dev/video0" (v4l2), "0" (avfoundation
	// index, the built-in front camera on macOS) or "video=<name>" (dshow).
	Device string

	// InputFormat is ffmpeg's -f demuxer; derived from GOOS when empty.
	InputFormat string

	// Width and Height are the requested resolution; stills are also scaled to fit.
	Width  int
	Height int

	FrameRate         int
	FirstFrameTimeout time.Duration

	// FFmpegPath overrides the ffmpeg binary looked up on PATH.
	FFmpegPath string
}

func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.InputFormat == "" {
		c.InputFormat = defaultInputFormat(runtime.GOOS)
	}
	if c.Device == "" {
		c.Device = defaultDevice(c.InputFormat)
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.FrameRate <= 0 {
		c.FrameRate = DefaultFrameRate
	}
	if c.FirstFrameTimeout <= 0 {
		c.FirstFrameTimeout = DefaultFirstFrameTimeout
	}
	return c
}

func defaultInputFormat(goos string) string {
	switch goos {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "v4l2"
	}
}

func defaultDevice(inputFormat string) string {
	switch inputFormat {
	case "avfoundation":
		return "0"
	case "v4l2":
		return "/dev/video0"
	default:
		return ""
	}
}

// ffmpegArgs builds the command line that streams the camera as MJPEG on stdout.
func (c DeviceConfig) ffmpegArgs() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-f", c.InputFormat,
		"-framerate", strconv.Itoa(c.FrameRate),
		"-video_size", fmt.Sprintf("%dx%d", c.Width, c.Height),
		"-i", c.Device,
		"-an",
		"-c:v", "mjpeg",
		"-q:v", strconv.Itoa(streamJPEGQuality),
		"-f", "mjpeg",
		"pipe:1",
	}
	return args
}

// DeviceSource is a Source backed by a local camera.
type DeviceSource struct {
	cfg DeviceConfig

	mu       sync.Mutex
	active   bool
	cancel   context.CancelFunc
	done     chan struct{}
	latest   []byte
	latestAt time.Time
	firstCh  chan struct{}
	lastErr  error
}

// NewDeviceSource creates a stopped DeviceSource.
func NewDeviceSource(cfg DeviceConfig) *DeviceSource {
	return &DeviceSource{cfg: cfg.withDefaults()}
}

// Mode implements Describer.
func (d *DeviceSource) Mode() string {
	return "device:" + d.cfg.Device
}

// Err returns the failure that ended the last stream, if any.
func (d *DeviceSource) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Start launches ffmpeg and waits for the first frame.
func (d *DeviceSource) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return nil
	}

	ffmpegPath, err := d.resolveFFmpeg()
	if err != nil {
		d.lastErr = err
		d.mu.Unlock()
		return err
	}
	if err := checkDevice(d.cfg); err != nil {
		d.lastErr = err
		d.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, ffmpegPath, d.cfg.ffmpegArgs()...)
	cmd.WaitDelay = 2 * time.Second
	stderr := &tailBuffer{max: stderrTailSize}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		d.mu.Unlock()
		return scene.NewError(scene.KindDevice, "camera", "failed to open camera pipe", err)
	}

	log.Info().
		Str("ffmpeg", ffmpegPath).
		Str("device", d.cfg.Device).
		Str("input_format", d.cfg.InputFormat).
		Int("width", d.cfg.Width).
		Int("height", d.cfg.Height).
		Msg("Starting camera stream")

	if err := cmd.Start(); err != nil {
		cancel()
		err = scene.NewError(scene.KindDeviceUnavailable, "camera", "failed to start ffmpeg", err)
		d.lastErr = err
		d.mu.Unlock()
		return err
	}

	done := make(chan struct{})
	first := make(chan struct{})
	d.active = true
	d.cancel = cancel
	d.done = done
	d.firstCh = first
	d.latest = nil
	d.lastErr = nil
	d.mu.Unlock()

	go d.readStream(cmd, stdout, stderr, done, first)

	timer := time.NewTimer(d.cfg.FirstFrameTimeout)
	defer timer.Stop()

	select {
	case <-first:
		log.Info().Str("device", d.cfg.Device).Msg("Camera stream live")
		return nil
	case <-done:
		if err := d.Err(); err != nil {
			return err
		}
		return scene.Errorf(scene.KindDevice, "camera", "camera stream ended before delivering a frame")
	case <-timer.C:
		_ = d.Stop()
		err := scene.Errorf(scene.KindDevice, "camera", "no frame received from %s within %s", d.cfg.Device, d.cfg.FirstFrameTimeout)
		d.setErr(err)
		return err
	case <-ctx.Done():
		_ = d.Stop()
		return ctx.Err()
	}
}

func (d *DeviceSource) readStream(cmd *exec.Cmd, stdout io.Reader, stderr *tailBuffer, done, first chan struct{}) {
	defer close(done)

	var once sync.Once
	readErr := splitJPEGFrames(stdout, func(frame []byte) {
		d.mu.Lock()
		if d.done == done {
			d.latest = frame
			d.latestAt = time.Now()
		}
		d.mu.Unlock()
		once.Do(func() { close(first) })
	})
	waitErr := cmd.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != done {
		return
	}

	// Stream ended on its own (device unplugged, ffmpeg crashed, camera busy).
	d.active = false
	d.latest = nil
	d.cancel()
	cause := waitErr
	if cause == nil {
		cause = readErr
	}
	msg := "Could not start webcam video. Please ensure permissions are granted and no other app is using the camera"
	if tail := strings.TrimSpace(stderr.String()); tail != "" {
		msg += " (" + lastLine(tail) + ")"
	}
	d.lastErr = scene.NewError(scene.KindDeviceUnavailable, "camera", msg, cause)
	log.Warn().Err(d.lastErr).Str("device", d.cfg.Device).Msg("Camera stream ended")
}

// Ready reports whether the stream is live and a frame is buffered.
func (d *DeviceSource) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active && d.latest != nil
}

// Capture re-encodes the latest buffered frame.
func (d *DeviceSource) Capture() (*scene.Capture, error) {
	d.mu.Lock()
	active, frame, at := d.active, d.latest, d.latestAt
	d.mu.Unlock()

	if !active || frame == nil {
		return nil, scene.Errorf(scene.KindDevice, "capture", "Webcam is not active. Please enable it to capture an image")
	}
	return Encode(frame, d.cfg.Width, d.cfg.Height, at)
}

// Stop kills the ffmpeg process and waits for the reader to drain.
func (d *DeviceSource) Stop() error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return nil
	}
	cancel, done := d.cancel, d.done
	d.active = false
	d.latest = nil
	d.done = nil
	d.mu.Unlock()

	cancel()
	<-done
	log.Info().Str("device", d.cfg.Device).Msg("Camera stream released")
	return nil
}

func (d *DeviceSource) setErr(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

func (d *DeviceSource) resolveFFmpeg() (string, error) {
	name := d.cfg.FFmpegPath
	if name == "" {
		name = "ffmpeg"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", scene.NewError(scene.KindDeviceUnavailable, "camera", "ffmpeg not found: camera capture requires ffmpeg", err)
	}
	return path, nil
}

// checkDevice maps missing or inaccessible device nodes to the user-facing
// camera messages. Only v4l2 exposes a device node to probe.
func checkDevice(cfg DeviceConfig) error {
	if cfg.Device == "" {
		return scene.Errorf(scene.KindDeviceUnavailable, "camera", "No webcam configured for %s. Pass --camera device:<name>", cfg.InputFormat)
	}
	if cfg.InputFormat != "v4l2" {
		return nil
	}

	f, err := os.Open(cfg.Device)
	switch {
	case err == nil:
		f.Close()
		return nil
	case errors.Is(err, os.ErrNotExist):
		return scene.NewError(scene.KindDeviceUnavailable, "camera", "No webcam found. Please ensure a camera is connected and enabled", err)
	case errors.Is(err, os.ErrPermission):
		return scene.NewError(scene.KindDeviceUnavailable, "camera", "Webcam permission denied. Please grant access to "+cfg.Device, err)
	default:
		return scene.NewError(scene.KindDeviceUnavailable, "camera", "Error accessing webcam", err)
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
