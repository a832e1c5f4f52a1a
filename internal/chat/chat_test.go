package chat

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"strings"
	"sync"
	"testing"

	"github.com/fpang/vision-weaver/internal/assets"
	"github.com/fpang/vision-weaver/internal/scene"
	"google.golang.org/genai"
)

// fakeGenerator records every call and answers with a canned response.
type fakeGenerator struct {
	mu     sync.Mutex
	text   string
	err    error
	calls  int
	model  string
	parts  []*genai.Part
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.model = model
	f.config = config
	f.parts = nil
	for _, c := range contents {
		f.parts = append(f.parts, c.Parts...)
	}
	if f.err != nil {
		return nil, f.err
	}
	return textResponse(f.text), nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func testCapture(t *testing.T) *scene.Capture {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 24)), nil); err != nil {
		t.Fatal(err)
	}
	return &scene.Capture{Data: buf.Bytes(), MIMEType: scene.MIMETypeJPEG, Width: 32, Height: 24}
}

func TestDescribe(t *testing.T) {
	gen := &fakeGenerator{text: "\n  A red ball on a wooden table.  \n"}
	d := NewSceneDescriber(gen, "gemini-test")
	c := testCapture(t)

	got, err := d.Describe(context.Background(), c)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if got != "A red ball on a wooden table." {
		t.Errorf("description = %q, want trimmed text", got)
	}

	if gen.model != "gemini-test" {
		t.Errorf("model = %q, want gemini-test", gen.model)
	}
	if len(gen.parts) != 2 {
		t.Fatalf("expected image part then prompt part, got %d parts", len(gen.parts))
	}
	if blob := gen.parts[0].InlineData; blob == nil || blob.MIMEType != scene.MIMETypeJPEG || !bytes.Equal(blob.Data, c.Data) {
		t.Error("first part should be the inline capture")
	}
	if gen.parts[1].Text != assets.DescribeScenePrompt {
		t.Errorf("second part should be the describe prompt, got %q", gen.parts[1].Text)
	}
}

func TestDescribeRejectsBadCaptures(t *testing.T) {
	good := testCapture(t)

	tests := []struct {
		name    string
		capture *scene.Capture
	}{
		{"nil capture", nil},
		{"no data", &scene.Capture{MIMEType: scene.MIMETypeJPEG}},
		{"non-image mime", &scene.Capture{Data: good.Data, MIMEType: "application/octet-stream"}},
		{"malformed container", &scene.Capture{Data: []byte{0xFF, 0xD8, 0xFF, 0x00, 0x01}, MIMEType: scene.MIMETypeJPEG}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{text: "unused"}
			_, err := NewSceneDescriber(gen, "").Describe(context.Background(), tt.capture)
			if !scene.IsKind(err, scene.KindFormat) {
				t.Fatalf("expected format error, got %v", err)
			}
			if gen.calls != 0 {
				t.Errorf("no request should be sent for invalid input, got %d", gen.calls)
			}
		})
	}
}

func TestDescribeNotConfigured(t *testing.T) {
	_, err := NewSceneDescriber(nil, "").Describe(context.Background(), testCapture(t))
	if !scene.IsKind(err, scene.KindConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDescribeRequestError(t *testing.T) {
	cause := errors.New("connection refused")
	gen := &fakeGenerator{err: cause}

	_, err := NewSceneDescriber(gen, "").Describe(context.Background(), testCapture(t))
	if !scene.IsKind(err, scene.KindRequest) {
		t.Fatalf("expected request error, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("request error should wrap the remote failure")
	}
	if gen.calls != 1 {
		t.Errorf("expected exactly one attempt (no retries), got %d", gen.calls)
	}
}

func TestDescribeEmptyResponse(t *testing.T) {
	gen := &fakeGenerator{text: "   "}
	_, err := NewSceneDescriber(gen, "").Describe(context.Background(), testCapture(t))
	if !scene.IsKind(err, scene.KindRequest) {
		t.Fatalf("expected request error for empty output, got %v", err)
	}
}

func TestWeave(t *testing.T) {
	gen := &fakeGenerator{text: "Once upon a time, a red ball rolled away.\n"}
	w := NewStoryWeaver(gen, "gemini-test")

	story, err := w.Weave(context.Background(), "a red ball")
	if err != nil {
		t.Fatalf("Weave: %v", err)
	}
	if story != "Once upon a time, a red ball rolled away." {
		t.Errorf("story = %q", story)
	}

	if len(gen.parts) != 1 || !strings.Contains(gen.parts[0].Text, `"a red ball"`) {
		t.Errorf("prompt should quote the description, got %+v", gen.parts)
	}
	if gen.config == nil || gen.config.SystemInstruction == nil {
		t.Fatal("expected storyteller system instruction")
	}
	if gen.config.SystemInstruction.Parts[0].Text != assets.StorySystemPrompt {
		t.Error("system instruction should be the story system prompt")
	}
}

func TestWeaveEmptyDescription(t *testing.T) {
	gen := &fakeGenerator{text: "The room was quiet and mysterious."}
	story, err := NewStoryWeaver(gen, "").Weave(context.Background(), "")
	if err != nil {
		t.Fatalf("empty description must not fail: %v", err)
	}
	if story == "" {
		t.Fatal("expected a non-empty story")
	}
	if !strings.Contains(gen.parts[0].Text, assets.VagueDescription) {
		t.Errorf("prompt should fall back to the vague description, got %q", gen.parts[0].Text)
	}
}

func TestWeaveErrors(t *testing.T) {
	if _, err := NewStoryWeaver(nil, "").Weave(context.Background(), "a cat"); !scene.IsKind(err, scene.KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}

	gen := &fakeGenerator{err: errors.New("500 internal")}
	if _, err := NewStoryWeaver(gen, "").Weave(context.Background(), "a cat"); !scene.IsKind(err, scene.KindRequest) {
		t.Errorf("expected request error, got %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("expected one attempt, got %d", gen.calls)
	}
}

func TestGetModelName(t *testing.T) {
	t.Setenv("GEMINI_MODEL", "")
	if got := GetModelName(); got != DefaultModelName {
		t.Errorf("GetModelName() = %q, want default %q", got, DefaultModelName)
	}
	t.Setenv("GEMINI_MODEL", "gemini-2.5-pro")
	if got := GetModelName(); got != "gemini-2.5-pro" {
		t.Errorf("GetModelName() = %q, want %q", got, "gemini-2.5-pro")
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("héllo world", 5); got != "héllo..." {
		t.Errorf("truncateString = %q", got)
	}
	if got := truncateString("short", 10); got != "short" {
		t.Errorf("truncateString = %q", got)
	}
}
