package chat

import (
	"context"

	"github.com/fpang/vision-weaver/internal/assets"
	"github.com/fpang/vision-weaver/internal/scene"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// StoryWeaver turns a scene description into a short whimsical story.
type StoryWeaver struct {
	gen   ContentGenerator
	model string
}

// NewStoryWeaver creates a weaver. A nil generator means no credential was
// configured; every call then fails with a configuration error.
func NewStoryWeaver(gen ContentGenerator, model string) *StoryWeaver {
	if model == "" {
		model = DefaultModelName
	}
	return &StoryWeaver{gen: gen, model: model}
}

// Weave returns a story for the description. A vague or empty description is
// valid input: the prompt asks for a story about an empty or mysterious scene.
func (w *StoryWeaver) Weave(ctx context.Context, description string) (string, error) {
	if w.gen == nil {
		return "", scene.NewError(scene.KindConfiguration, "weave", scene.ErrNotConfigured.Message, nil)
	}

	prompt := assets.RenderStoryPrompt(description)
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: assets.StorySystemPrompt}},
		},
	}

	log.Info().
		Str("model", w.model).
		Str("description", truncateString(description, 100)).
		Msg("Weaving story from scene description...")

	story, err := generateText(ctx, w.gen, "weave", w.model, genai.Text(prompt), config)
	if err != nil {
		return "", err
	}

	log.Info().Int("story_length", len(story)).Msg("Story woven")
	return story, nil
}
