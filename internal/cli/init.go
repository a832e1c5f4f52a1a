// Package cli holds the startup and terminal helpers shared by the
// vision-weaver commands.
package cli

import (
	"context"
	"errors"

	"github.com/fpang/vision-weaver/internal/auth"
	"github.com/fpang/vision-weaver/internal/chat"
	"github.com/rs/zerolog/log"
)

// Stages bundles the two remote pipeline stages built from the environment.
type Stages struct {
	Model      string
	Describer  *chat.SceneDescriber
	Weaver     *chat.StoryWeaver
	Configured bool
}

// InitStages resolves the API key once and builds the describer and weaver.
// A missing key is not fatal: the stages are returned unconfigured and every
// call fails with a configuration error. When validate is set the key is
// probed with a minimal request and a failure exits.
func InitStages(ctx context.Context, model string, validate bool) Stages {
	if model == "" {
		model = chat.GetModelName()
	}

	apiKey, err := auth.GetAPIKey()
	if err != nil {
		log.Warn().Err(err).Msg("Gemini API key is not configured; captures will be rejected")
		return Stages{
			Model:     model,
			Describer: chat.NewSceneDescriber(nil, model),
			Weaver:    chat.NewStoryWeaver(nil, model),
		}
	}

	client, err := chat.NewGeminiClient(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Gemini client")
	}
	log.Info().Str("model", model).Msg("connection successful - Gemini client initialized")

	if validate {
		if err := auth.ValidateAPIKey(ctx, client.Models, model); err != nil {
			HandleValidationError(err)
		}
		log.Info().Msg("API key validation complete - ready for operations")
	}

	return Stages{
		Model:      model,
		Describer:  chat.NewSceneDescriber(client.Models, model),
		Weaver:     chat.NewStoryWeaver(client.Models, model),
		Configured: true,
	}
}

// RequireConfigured exits when no API key was found. Commands without a UI
// to show the not-configured banner use it.
func RequireConfigured(s Stages) {
	if !s.Configured {
		HandleValidationError(auth.ErrNoAPIKey)
	}
}

// IsNotConfigured reports whether err means the API key is missing.
func IsNotConfigured(err error) bool {
	var valErr *auth.ValidationError
	return errors.As(err, &valErr) && valErr.Type == auth.ErrTypeNoKey
}
