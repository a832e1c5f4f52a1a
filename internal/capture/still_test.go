package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fpang/vision-weaver/internal/scene"
)

func TestStillSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.png")
	if err := os.WriteFile(path, testPNG(t, 1920, 1080), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewStillSource(path)
	if _, err := src.Capture(); !scene.IsKind(err, scene.KindDevice) {
		t.Fatalf("capture before start: expected device error, got %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c, err := src.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if c.MIMEType != scene.MIMETypeJPEG || c.Width != 1280 || c.Height != 720 {
		t.Errorf("capture = %v", c)
	}

	// Replacing the file changes the next capture.
	if err := os.WriteFile(path, testPNG(t, 100, 50), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err = src.Capture()
	if err != nil {
		t.Fatalf("Capture after replace: %v", err)
	}
	if c.Width != 100 || c.Height != 50 {
		t.Errorf("size after replace = %dx%d, want 100x50", c.Width, c.Height)
	}
}

func TestStillSourceMissingFile(t *testing.T) {
	src := NewStillSource(filepath.Join(t.TempDir(), "missing.jpg"))
	err := src.Start(context.Background())
	if !scene.IsKind(err, scene.KindDeviceUnavailable) {
		t.Fatalf("expected device unavailable, got %v", err)
	}
	if src.Ready() {
		t.Error("failed source should not be ready")
	}
	if src.Err() == nil {
		t.Error("Err should report the start failure")
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "still.jpg")
	if err := os.WriteFile(img, testJPEG(t, 8, 8), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		setting  string
		wantMode string
		wantErr  bool
	}{
		{"", "browser", false},
		{"browser", "browser", false},
		{"/dev/video2", "device:/dev/video2", false},
		{"device:0", "device:0", false},
		{img, "file:" + img, false},
		{dir, "", true},
		{filepath.Join(dir, "nope.jpg"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.setting, func(t *testing.T) {
			src, err := Open(tt.setting)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			if got := StatusOf(src).Mode; got != tt.wantMode {
				t.Errorf("mode = %q, want %q", got, tt.wantMode)
			}
		})
	}
}

func TestStillSourceTakenAtFallsBackToModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.jpg")
	if err := os.WriteFile(path, testJPEG(t, 64, 48), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	src := NewStillSource(path)
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	c, err := src.Capture()
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if !c.TakenAt.Equal(info.ModTime()) {
		t.Errorf("TakenAt = %v, want file mod time %v", c.TakenAt, info.ModTime())
	}
}

func TestExifTakenAtWithoutMetadata(t *testing.T) {
	if _, ok := exifTakenAt(testPNG(t, 8, 8)); ok {
		t.Error("PNG without EXIF should report no capture time")
	}
}
