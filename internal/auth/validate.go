package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fpang/vision-weaver/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ValidationError represents a specific type of API key validation failure.
type ValidationError struct {
	Type    ValidationErrorType
	Message string
	Err     error
}

// ValidationErrorType categorizes validation failures.
type ValidationErrorType int

const (
	// ErrTypeNoKey indicates no API key was found.
	ErrTypeNoKey ValidationErrorType = iota
	// ErrTypeInvalidKey indicates the API key is invalid or revoked.
	ErrTypeInvalidKey
	// ErrTypeNetworkError indicates a network connectivity issue.
	ErrTypeNetworkError
	// ErrTypeQuotaExceeded indicates the API quota has been exceeded.
	ErrTypeQuotaExceeded
	// ErrTypeUnknown indicates an unknown error occurred.
	ErrTypeUnknown
)

// String returns the metric/log label for the type.
func (t ValidationErrorType) String() string {
	switch t {
	case ErrTypeNoKey:
		return "no_key"
	case ErrTypeInvalidKey:
		return "invalid"
	case ErrTypeNetworkError:
		return "network_error"
	case ErrTypeQuotaExceeded:
		return "quota"
	default:
		return "unknown"
	}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Generator is the slice of the Gemini models API used for validation.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ValidateAPIKey verifies that the API key is valid by making a minimal API call.
// It returns nil if the key is valid, or a ValidationError with a specific type
// indicating the nature of the failure.
func ValidateAPIKey(ctx context.Context, gen Generator, model string) error {
	log.Debug().Str("model", model).Msg("Validating API key with Gemini API")

	start := time.Now()
	resp, err := gen.GenerateContent(ctx, model, genai.Text("hi"), nil)
	elapsed := time.Since(start)

	result := "success"
	var valErr *ValidationError
	switch {
	case err != nil:
		valErr = ClassifyError(err)
		result = valErr.Type.String()
	case resp == nil || len(resp.Candidates) == 0:
		log.Warn().Msg("API key validation returned empty response")
		result = "empty_response"
		valErr = &ValidationError{
			Type:    ErrTypeUnknown,
			Message: "API returned empty response",
		}
	}

	metrics.New(metrics.Namespace).
		Dimension("Result", result).
		Duration("ApiKeyValidationMs", elapsed).
		Count("ApiKeyValidationResult").
		Flush()

	log.Debug().
		Str("result", result).
		Dur("duration", elapsed).
		Msg("API key validation result")

	if valErr != nil {
		return valErr
	}
	log.Info().Msg("API key validated successfully")
	return nil
}

// messages holds the user-facing text for each failure type.
var messages = map[ValidationErrorType]string{
	ErrTypeInvalidKey:    "Gemini rejected the API key",
	ErrTypeNetworkError:  "Could not reach Gemini; check the connection and try again",
	ErrTypeQuotaExceeded: "Gemini quota exceeded; wait a moment and try again",
	ErrTypeUnknown:       "Gemini request failed",
}

// textMarkers maps lower-cased error text fragments to a failure type for
// errors that do not carry an HTTP status. Checked in order.
var textMarkers = []struct {
	typ       ValidationErrorType
	fragments []string
}{
	{ErrTypeInvalidKey, []string{"api key not valid", "api_key_invalid", "permission denied"}},
	{ErrTypeQuotaExceeded, []string{"quota", "resource exhausted", "rate limit"}},
	{ErrTypeNetworkError, []string{"dial", "no such host", "connection", "timeout", "unreachable"}},
}

// ClassifyError labels a Gemini error for startup validation, log fields
// and metric dimensions.
func ClassifyError(err error) *ValidationError {
	if err == nil {
		return nil
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr
	}
	typ := classify(err)
	return &ValidationError{Type: typ, Message: messageFor(typ, err), Err: err}
}

func classify(err error) ValidationErrorType {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 400 || apiErr.Code == 401 || apiErr.Code == 403:
			return ErrTypeInvalidKey
		case apiErr.Code == 429:
			return ErrTypeQuotaExceeded
		case apiErr.Code >= 500:
			return ErrTypeNetworkError
		default:
			return ErrTypeUnknown
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeNetworkError
	}
	text := strings.ToLower(err.Error())
	for _, m := range textMarkers {
		for _, f := range m.fragments {
			if strings.Contains(text, f) {
				return m.typ
			}
		}
	}
	return ErrTypeUnknown
}

// messageFor prefers the API's own message for statuses without a
// dedicated explanation.
func messageFor(typ ValidationErrorType, err error) string {
	var apiErr *genai.APIError
	if typ == ErrTypeUnknown && errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return messages[typ]
}
