package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/stockqa/pkg/llm"
)

const memoryLogPrefix = "responder:memory"

// NoHistorySentinel is the reply the model is told to give when the history has no answer.
const NoHistorySentinel = "No relevant history found"

var memoryTriggers = []string{"earlier", "previous", "history"}

// Memory answers questions about the conversation itself.
type Memory struct {
	model llm.Answerer
}

// NewMemory creates the memory adapter.
func NewMemory(model llm.Answerer) *Memory {
	return &Memory{model: model}
}

func (m *Memory) Name() string { return MemoryAgent }

// Respond asks the model to answer from the history window only.
func (m *Memory) Respond(ctx context.Context, req *Request) Outcome {
	if !containsAny(strings.ToLower(req.Query), memoryTriggers...) {
		return NotApplicable
	}
	if len(req.History) == 0 || m.model == nil {
		return NotApplicable
	}

	system := "You are the MemoryAgent. Use only the chat history below to answer the user's question " +
		"about earlier parts of the conversation. If the history does not contain the answer, reply exactly: " +
		NoHistorySentinel + "\n\nChat History:\n" + FormatHistory(req.History)

	reply, err := m.model.Complete(ctx, system, req.Query)
	if err != nil {
		return Failed(fmt.Errorf("%s - model call failed: %w", memoryLogPrefix, err))
	}
	if strings.HasPrefix(strings.TrimSpace(reply), NoHistorySentinel) {
		slog.Debug(fmt.Sprintf("%s - no relevant history for %q", memoryLogPrefix, req.Query))
		return NotApplicable
	}
	return Answered(reply)
}
