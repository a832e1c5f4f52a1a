package chat

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/fpang/vision-weaver/internal/assets"
	"github.com/fpang/vision-weaver/internal/scene"
	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"
	"google.golang.org/genai"
)

// SceneDescriber asks Gemini to list the objects in a captured still.
// It holds no per-call state and is safe for concurrent use.
type SceneDescriber struct {
	gen   ContentGenerator
	model string
}

// NewSceneDescriber creates a describer. A nil generator means no credential
// was configured at startup; every call then fails with a configuration error.
func NewSceneDescriber(gen ContentGenerator, model string) *SceneDescriber {
	if model == "" {
		model = DefaultModelName
	}
	return &SceneDescriber{gen: gen, model: model}
}

// Describe returns a trimmed natural-language description of the capture.
// One request per call; failures are returned immediately, never retried.
func (d *SceneDescriber) Describe(ctx context.Context, c *scene.Capture) (string, error) {
	if d.gen == nil {
		return "", scene.NewError(scene.KindConfiguration, "describe", scene.ErrNotConfigured.Message, nil)
	}

	blob, err := inlineImage(c)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		{InlineData: blob},
		{Text: assets.DescribeScenePrompt},
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	log.Info().
		Str("model", d.model).
		Str("capture", c.String()).
		Msg("Sending capture to Gemini for scene description...")

	description, err := generateText(ctx, d.gen, "describe", d.model, contents, nil)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("description", truncateString(description, 120)).
		Msg("Scene described")
	return description, nil
}

// inlineImage validates the capture and converts it to the inline blob the
// API expects. Any container problem is a format error.
func inlineImage(c *scene.Capture) (*genai.Blob, error) {
	if c.Empty() {
		return nil, scene.Errorf(scene.KindFormat, "describe", "capture has no image data")
	}
	if !strings.HasPrefix(c.MIMEType, "image/") {
		return nil, scene.Errorf(scene.KindFormat, "describe", "capture has non-image MIME type %q", c.MIMEType)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(c.Data)); err != nil {
		return nil, scene.NewError(scene.KindFormat, "describe", "malformed image container", err)
	}
	return &genai.Blob{MIMEType: c.MIMEType, Data: c.Data}, nil
}
