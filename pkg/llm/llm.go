// Package llm wraps the language models used to compose answers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Answerer completes a single-turn prompt.
type Answerer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("llm: empty model response")

// Provider names accepted by New.
const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Defaults for the Groq-hosted model.
const (
	DefaultGroqURL     = "https://api.groq.com/openai/v1/chat/completions"
	DefaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	DefaultModel       = "qwen-qwq-32b"
	DefaultGeminiModel = "gemini-2.0-flash-001"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

// Options selects and configures a model backend.
type Options struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New builds the Answerer for opts.Provider.
func New(ctx context.Context, opts Options) (Answerer, error) {
	switch strings.ToLower(opts.Provider) {
	case "", ProviderGroq:
		if opts.BaseURL == "" {
			opts.BaseURL = DefaultGroqURL
		}
		if opts.Model == "" {
			opts.Model = DefaultModel
		}
		return NewChatClient(opts), nil
	case ProviderOpenAI:
		if opts.BaseURL == "" {
			opts.BaseURL = DefaultOpenAIURL
		}
		return NewChatClient(opts), nil
	case ProviderGemini:
		if opts.Model == "" || opts.Model == DefaultModel {
			opts.Model = DefaultGeminiModel
		}
		return NewGeminiClient(ctx, opts)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", opts.Provider)
	}
}
