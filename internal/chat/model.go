package chat

import "os"

// DefaultModelName is the Gemini model used for both the vision and the text
// step. GEMINI_MODEL or --model overrides it.
const DefaultModelName = "gemini-2.5-flash"

// GetModelName returns GEMINI_MODEL when set, otherwise DefaultModelName.
func GetModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}
