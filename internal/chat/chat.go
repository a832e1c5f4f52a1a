// Package chat wraps the two Gemini calls of the pipeline: describing a
// captured scene and weaving a story from that description.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/vision-weaver/internal/auth"
	"github.com/fpang/vision-weaver/internal/metrics"
	"github.com/fpang/vision-weaver/internal/scene"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ContentGenerator is the slice of the Gemini models API the pipeline uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGeminiClient creates a Gemini API client for the given key.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// generateText runs one GenerateContent call and returns the trimmed text.
// Remote failures and empty output become request errors; the remote reason
// is wrapped, not parsed. op labels logs and metrics ("describe", "weave").
func generateText(ctx context.Context, gen ContentGenerator, op, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	callStart := time.Now()
	resp, err := gen.GenerateContent(ctx, model, contents, config)
	duration := time.Since(callStart)

	result := "success"
	defer func() {
		metrics.New(metrics.Namespace).
			Dimension("Operation", op).
			Dimension("Result", result).
			Duration("GeminiCallMs", duration).
			Count("GeminiCalls").
			Property("model", model).
			Flush()
	}()

	if err != nil {
		result = auth.ClassifyError(err).Type.String()
		log.Error().Err(err).Str("op", op).Str("model", model).Dur("duration", duration).Msg("Gemini API request failed")
		return "", scene.NewError(scene.KindRequest, op, "Gemini API request failed", err)
	}
	if resp == nil {
		result = "empty_response"
		return "", scene.Errorf(scene.KindRequest, op, "received empty response from Gemini API")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		result = "empty_response"
		reason := blockReason(resp)
		log.Warn().Str("op", op).Str("reason", reason).Msg("Gemini returned no text")
		return "", scene.Errorf(scene.KindRequest, op, "Gemini API returned no text (%s)", reason)
	}

	log.Debug().
		Str("op", op).
		Str("model", model).
		Int("response_length", len(text)).
		Dur("duration", duration).
		Msg("Gemini API response received")
	return text, nil
}

// blockReason explains an empty response for the error message.
func blockReason(resp *genai.GenerateContentResponse) string {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "blocked: " + string(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "no candidates"
	}
	if fr := resp.Candidates[0].FinishReason; fr != "" {
		return "finish reason " + string(fr)
	}
	return "empty candidate"
}

// truncateString shortens s to at most maxLen runes for log fields.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
