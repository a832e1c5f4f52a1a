package capture

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/fpang/vision-weaver/internal/scene"
)

func TestDeviceConfigDefaults(t *testing.T) {
	cfg := DeviceConfig{InputFormat: "v4l2"}.withDefaults()
	if cfg.Device != "/dev/video0" {
		t.Errorf("Device = %q, want /dev/video0", cfg.Device)
	}
	if cfg.Width != DefaultWidth || cfg.Height != DefaultHeight || cfg.FrameRate != DefaultFrameRate {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	args := strings.Join(cfg.ffmpegArgs(), " ")
	for _, want := range []string{"-f v4l2", "-video_size 1280x720", "-i /dev/video0", "-f mjpeg", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Errorf("ffmpeg args %q missing %q", args, want)
		}
	}

	if got := defaultInputFormat("darwin"); got != "avfoundation" {
		t.Errorf("darwin input format = %q", got)
	}
	if got := defaultDevice("avfoundation"); got != "0" {
		t.Errorf("avfoundation device = %q", got)
	}
	if got := defaultDevice("dshow"); got != "" {
		t.Errorf("dshow device = %q, want empty", got)
	}
}

func TestDeviceSourceMissingFFmpeg(t *testing.T) {
	src := NewDeviceSource(DeviceConfig{
		Device:     "/dev/video0",
		FFmpegPath: filepath.Join(t.TempDir(), "no-ffmpeg-here"),
	})
	err := src.Start(context.Background())
	if !scene.IsKind(err, scene.KindDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if src.Ready() {
		t.Error("source should not be ready")
	}
}

func TestCheckDevice(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "video0")
	if err := os.WriteFile(present, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := checkDevice(DeviceConfig{InputFormat: "v4l2", Device: present}); err != nil {
		t.Errorf("present device: %v", err)
	}

	err := checkDevice(DeviceConfig{InputFormat: "v4l2", Device: filepath.Join(dir, "video9")})
	if !scene.IsKind(err, scene.KindDeviceUnavailable) || !strings.Contains(err.Error(), "No webcam found") {
		t.Errorf("missing device: got %v", err)
	}

	if err := checkDevice(DeviceConfig{InputFormat: "dshow"}); !scene.IsKind(err, scene.KindDeviceUnavailable) {
		t.Errorf("unnamed dshow device: got %v", err)
	}
	if err := checkDevice(DeviceConfig{InputFormat: "avfoundation", Device: "0"}); err != nil {
		t.Errorf("avfoundation devices are not probed: %v", err)
	}
}

// fakeFFmpeg writes a shell script that streams frame.jpg forever, standing
// in for ffmpeg reading a camera.
func fakeFFmpeg(t *testing.T, frame []byte) (script, device string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}

	dir := t.TempDir()
	framePath := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(framePath, frame, 0o644); err != nil {
		t.Fatal(err)
	}
	device = filepath.Join(dir, "video0")
	if err := os.WriteFile(device, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	script = filepath.Join(dir, "ffmpeg")
	body := "#!/bin/sh\nwhile true; do cat '" + framePath + "'; sleep 0.05; done\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	return script, device
}

func TestDeviceSourceStream(t *testing.T) {
	script, device := fakeFFmpeg(t, testJPEG(t, 640, 360))

	src := NewDeviceSource(DeviceConfig{
		Device:            device,
		InputFormat:       "v4l2",
		FFmpegPath:        script,
		FirstFrameTimeout: 5 * time.Second,
	})
	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	if !src.Ready() {
		t.Fatal("source should be ready after Start returns")
	}
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start while active should be a no-op: %v", err)
	}

	c, err := src.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if c.Width != 640 || c.Height != 360 {
		t.Errorf("size = %dx%d, want 640x360", c.Width, c.Height)
	}

	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if src.Ready() {
		t.Error("source should not be ready after Stop")
	}
	if _, err := src.Capture(); !scene.IsKind(err, scene.KindDevice) {
		t.Errorf("capture after stop: expected device error, got %v", err)
	}

	// Re-acquire after release.
	if err := src.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := src.Capture(); err != nil {
		t.Errorf("Capture after restart: %v", err)
	}
}

func TestDeviceSourceProcessExits(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	dir := t.TempDir()
	device := filepath.Join(dir, "video0")
	if err := os.WriteFile(device, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	script := filepath.Join(dir, "ffmpeg")
	body := "#!/bin/sh\necho 'Device or resource busy' >&2\nexit 1\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	src := NewDeviceSource(DeviceConfig{Device: device, InputFormat: "v4l2", FFmpegPath: script})
	err := src.Start(context.Background())
	if !scene.IsKind(err, scene.KindDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "busy") {
		t.Errorf("error should carry ffmpeg's stderr tail: %v", err)
	}
	if src.Ready() {
		t.Error("source should not be ready")
	}
}
