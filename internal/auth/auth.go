// Package auth resolves and validates the Gemini API credential.
package auth

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// Environment variables consulted for the API key, in priority order.
// API_KEY is accepted as a fallback name.
var apiKeyEnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

// ErrNoAPIKey is returned when no credential is configured.
var ErrNoAPIKey = &ValidationError{
	Type:    ErrTypeNoKey,
	Message: "Gemini API key is not configured. Please set the GEMINI_API_KEY environment variable",
}

// GetAPIKey retrieves the Gemini API key from the process environment.
// It is meant to be called once at startup; a missing key is a persistent
// condition, not something to retry per request.
func GetAPIKey() (string, error) {
	for _, name := range apiKeyEnvVars {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			log.Debug().Str("source", name).Msg("Using API key from environment variable")
			return key, nil
		}
	}

	log.Warn().Strs("checked", apiKeyEnvVars).Msg("No API key configured")
	return "", ErrNoAPIKey
}
