package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/fpang/vision-weaver/internal/auth"
	"github.com/rs/zerolog/log"
)

// imageExtensions are the still formats the capture encoder can decode.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

// ValidateAndResolveImage checks that the path exists and is a supported
// image file, then returns the absolute path. Exits fatally on failure.
func ValidateAndResolveImage(imagePath string) string {
	resolved, err := ResolveImage(imagePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", imagePath).Msg("Invalid image")
	}
	return resolved
}

// ResolveImage is ValidateAndResolveImage without the exit.
func ResolveImage(imagePath string) (string, error) {
	info, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New("image not found")
		}
		return "", err
	}
	if info.IsDir() {
		return "", errors.New("path is a directory, expected an image file")
	}
	if !imageExtensions[strings.ToLower(filepath.Ext(imagePath))] {
		return "", errors.New("unsupported image type (want .jpg, .jpeg, .png or .webp)")
	}

	if absPath, err := filepath.Abs(imagePath); err == nil {
		imagePath = absPath
	}
	return imagePath, nil
}

// HandleValidationError processes auth.ValidationError and exits with appropriate messaging.
func HandleValidationError(err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Type {
		case auth.ErrTypeNoKey:
			log.Fatal().Msg("No API key configured. Set GEMINI_API_KEY")
		case auth.ErrTypeInvalidKey:
			log.Fatal().Err(err).Msg("Invalid API key. Please check your API key and try again")
		case auth.ErrTypeNetworkError:
			log.Fatal().Err(err).Msg("Network error. Please check your internet connection")
		case auth.ErrTypeQuotaExceeded:
			log.Fatal().Err(err).Msg("API quota exceeded. Please try again later or check your usage limits")
		default:
			log.Fatal().Err(err).Msg("API key validation failed")
		}
	} else {
		log.Fatal().Err(err).Msg("unexpected error during API key validation")
	}
	os.Exit(1)
}
