package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const chatLogPrefix = "llm:chat"

// ChatClient is a minimal OpenAI-compatible chat completions client (Groq, OpenAI).
type ChatClient struct {
	apiKey      string
	url         string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewChatClient creates a chat completions client. Zero temperature and max tokens use the defaults.
func NewChatClient(opts Options) *ChatClient {
	if opts.Temperature == 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &ChatClient{
		apiKey:      opts.APIKey,
		url:         opts.BaseURL,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one system and one user message and returns the reply text.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s - failed to marshal request: %w", chatLogPrefix, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%s - failed to create request: %w", chatLogPrefix, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s - request failed: %w", chatLogPrefix, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s - failed reading response: %w", chatLogPrefix, err)
	}

	var parsed chatResponse
	parseErr := json.Unmarshal(body, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parseErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("%s - status=%d: %s", chatLogPrefix, resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("%s - status=%d body=%s", chatLogPrefix, resp.StatusCode, truncate(string(body), 400))
	}
	if parseErr != nil {
		return "", fmt.Errorf("%s - failed to parse response: %s", chatLogPrefix, truncate(string(body), 400))
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := stripReasoning(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	slog.Debug(fmt.Sprintf("%s - model=%s reply=%d chars", chatLogPrefix, c.model, len(content)))
	return content, nil
}

// stripReasoning drops a leading <think>...</think> block emitted by reasoning models.
func stripReasoning(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<think>") {
		if end := strings.Index(s, "</think>"); end >= 0 {
			s = strings.TrimSpace(s[end+len("</think>"):])
		}
	}
	return s
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}

var _ Answerer = (*ChatClient)(nil)
