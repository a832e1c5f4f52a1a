// Package assets provides the prompt templates embedded into the binary.
//
// Prompts are stored as text files under prompts/ and embedded at compile time
// so they can be edited without touching Go code.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// --- Static prompts ---

// DescribeScenePrompt asks the model to list the objects visible in a still image.
//
//go:embed prompts/describe-scene.txt
var DescribeScenePrompt string

// StorySystemPrompt sets the storyteller persona for story generation.
//
//go:embed prompts/story-system.txt
var StorySystemPrompt string

// --- Dynamic prompt templates ---

//go:embed prompts/story.txt
var storyTemplate string

// template.Must panics on malformed templates, catching errors at program
// startup rather than at call time.
var storyPromptTmpl = template.Must(template.New("story").Parse(storyTemplate))

// VagueDescription is what the describer is told to answer when nothing
// recognisable is in frame. The story prompt quotes it as the example of a
// vague description.
const VagueDescription = "No specific objects are clear."

// StoryPromptData holds the dynamic data injected into the story prompt.
type StoryPromptData struct {
	Description  string
	VagueExample string
}

// RenderStoryPrompt renders the story prompt for a scene description.
// Blank descriptions are replaced with VagueDescription so the model writes
// about an empty or mysterious scene instead of failing.
func RenderStoryPrompt(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		description = VagueDescription
	}

	var buf bytes.Buffer
	// Execution errors are not expected with this template; whatever was
	// rendered is returned.
	_ = storyPromptTmpl.Execute(&buf, StoryPromptData{
		Description:  description,
		VagueExample: strings.TrimSuffix(VagueDescription, "."),
	})
	return strings.TrimSpace(buf.String())
}
