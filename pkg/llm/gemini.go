package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient answers prompts with a Gemini model.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiClient creates a client for the Gemini API. An empty APIKey falls back to the
// GEMINI_API_KEY / GOOGLE_API_KEY environment variables read by genai.
func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm:gemini - creating genai client: %w", err)
	}
	temp := opts.Temperature
	if temp == 0 {
		temp = DefaultTemperature
	}
	model := opts.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiClient{client: client, model: model, temperature: float32(temp)}, nil
}

// Complete generates one reply with system as the system instruction.
func (g *GeminiClient) Complete(ctx context.Context, system, user string) (string, error) {
	cfg := &genai.GenerateContentConfig{Temperature: &g.temperature}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("llm:gemini - generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

var _ Answerer = (*GeminiClient)(nil)
