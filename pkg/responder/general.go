package responder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/stockqa/pkg/llm"
)

const generalLogPrefix = "responder:general"

// General is the terminal adapter: it always answers.
type General struct {
	model llm.Answerer
}

// NewGeneral creates the fallback adapter.
func NewGeneral(model llm.Answerer) *General {
	return &General{model: model}
}

func (g *General) Name() string { return GeneralAgent }

// Respond never declines; a model failure becomes the answer text.
func (g *General) Respond(ctx context.Context, req *Request) Outcome {
	system := "You are a helpful assistant answering general questions. Use the provided chat history to infer context, " +
		"e.g., if the user previously asked about India, assume India for ambiguous queries like 'who is the president'."
	if req.Hint != nil {
		system += fmt.Sprintf("\nThe question most likely refers to the %s %s.", req.Hint.Kind, req.Hint.Value)
	}
	system += "\n\nChat History:\n" + FormatHistory(req.History)

	if g.model == nil {
		return Answered("Error processing general query: no language model configured")
	}
	reply, err := g.model.Complete(ctx, system, req.Query)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - model call failed: %v", generalLogPrefix, err))
		return Answered(fmt.Sprintf("Error processing general query: %v", err))
	}
	return Answered(reply)
}
