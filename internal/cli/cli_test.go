package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/vision-weaver/internal/auth"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{4 * time.Second, "0:04"},
		{75 * time.Second, "1:15"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.d); got != tt.want {
			t.Errorf("FormatDurationShort(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	in := "Once upon a time a red ball rolled.\n\nThe end of the tale."
	got := WrapText(in, 12)
	want := "Once upon a\ntime a red\nball rolled.\n\nThe end of\nthe tale."
	if got != want {
		t.Errorf("WrapText =\n%s\nwant\n%s", got, want)
	}

	if got := WrapText("supercalifragilistic word", 5); got != "supercalifragilistic\nword" {
		t.Errorf("long word: %q", got)
	}
	if got := WrapText("as is", 0); got != "as is" {
		t.Errorf("width 0: %q", got)
	}
}

func TestPromptForCapture(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"\n", true},
		{"again\n", true},
		{"q\n", false},
		{"QUIT\n", false},
		{"", false},
	}
	for _, tt := range tests {
		got := PromptForCapture(bufio.NewReader(strings.NewReader(tt.input)), io.Discard)
		if got != tt.want {
			t.Errorf("PromptForCapture(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestResolveImage(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "scene.JPG")
	if err := os.WriteFile(img, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got, err := ResolveImage(img); err != nil || got != img {
		t.Errorf("ResolveImage(%q) = %q, %v", img, got, err)
	}
	for _, bad := range []string{txt, dir, filepath.Join(dir, "missing.png")} {
		if _, err := ResolveImage(bad); err == nil {
			t.Errorf("ResolveImage(%q) should fail", bad)
		}
	}
}

func TestIsNotConfigured(t *testing.T) {
	if !IsNotConfigured(auth.ErrNoAPIKey) {
		t.Error("ErrNoAPIKey should be a not-configured error")
	}
	if IsNotConfigured(errors.New("boom")) {
		t.Error("plain error is not a configuration error")
	}
}

func TestInitStagesWithoutKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")

	stages := InitStages(context.Background(), "custom-model", false)
	if stages.Configured {
		t.Error("stages should be unconfigured without a key")
	}
	if stages.Model != "custom-model" {
		t.Errorf("model = %q, want custom-model", stages.Model)
	}
	if stages.Describer == nil || stages.Weaver == nil {
		t.Error("unconfigured stages should still be usable")
	}
}
