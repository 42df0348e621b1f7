package responder

import (
	"context"
	"fmt"

	"github.com/morezero/stockqa/pkg/document"
	"github.com/morezero/stockqa/pkg/llm"
)

const ragLogPrefix = "responder:rag"

// DefaultMaxDocumentChars bounds the document text placed in the prompt.
const DefaultMaxDocumentChars = 12000

// RAG answers from the document attached to the session.
type RAG struct {
	extractor document.Extractor
	model     llm.Answerer
	maxChars  int
}

// NewRAG creates the document adapter. maxChars <= 0 uses DefaultMaxDocumentChars.
func NewRAG(extractor document.Extractor, model llm.Answerer, maxChars int) *RAG {
	if maxChars <= 0 {
		maxChars = DefaultMaxDocumentChars
	}
	return &RAG{extractor: extractor, model: model, maxChars: maxChars}
}

func (r *RAG) Name() string { return RAGAgent }

// Respond implements Responder. Extraction failures are Failed so routing continues.
func (r *RAG) Respond(ctx context.Context, req *Request) Outcome {
	if req.Document == nil || r.extractor == nil || r.model == nil {
		return NotApplicable
	}

	text, err := r.extractor.Extract(ctx, *req.Document)
	if err != nil {
		return Failed(fmt.Errorf("%s - failed to process %s: %w", ragLogPrefix, req.Document.Name, err))
	}
	if text == "" {
		return Failed(fmt.Errorf("%s - failed to process %s: %w", ragLogPrefix, req.Document.Name, document.ErrNoText))
	}

	prompt := fmt.Sprintf("Based on the following PDF content, answer the query:\n\n%s\n\nQuery: %s",
		document.Truncate(text, r.maxChars), req.Query)
	reply, err := r.model.Complete(ctx, "You are the RAGAgent. Answer queries based on the provided PDF content.", prompt)
	if err != nil {
		return Failed(fmt.Errorf("%s - model call failed: %w", ragLogPrefix, err))
	}
	return Answered(reply)
}
