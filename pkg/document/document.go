// Package document extracts plain text from documents attached to a session.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const logPrefix = "document:extract"

// ErrNoText is returned when a document yields no text.
var ErrNoText = errors.New("document: no extractable text")

// ErrUnsupported is returned for document types that cannot be read.
var ErrUnsupported = errors.New("document: unsupported type")

// Document is an uploaded file held in memory.
type Document struct {
	Name string
	Data []byte
}

// Extractor turns a document into plain text.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (string, error)
}

// TextExtractor reads PDFs with ledongthuc/pdf and passes plain-text files through.
type TextExtractor struct{}

// NewExtractor returns the default extractor.
func NewExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns the document text with whitespace runs collapsed.
func (TextExtractor) Extract(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(doc.Data) == 0 {
		return "", fmt.Errorf("%s - %s: %w", logPrefix, doc.Name, ErrNoText)
	}

	var text string
	switch {
	case isPDF(doc):
		t, err := extractPDF(doc.Data)
		if err != nil {
			return "", fmt.Errorf("%s - %s: %w", logPrefix, doc.Name, err)
		}
		text = t
	case isText(doc):
		text = string(doc.Data)
	default:
		return "", fmt.Errorf("%s - %s: %w", logPrefix, doc.Name, ErrUnsupported)
	}

	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", fmt.Errorf("%s - %s: %w", logPrefix, doc.Name, ErrNoText)
	}
	slog.Debug(fmt.Sprintf("%s - Extracted %d chars from %s", logPrefix, len(text), doc.Name))
	return text, nil
}

func isPDF(doc Document) bool {
	return bytes.HasPrefix(doc.Data, []byte("%PDF-")) || strings.EqualFold(filepath.Ext(doc.Name), ".pdf")
}

func isText(doc Document) bool {
	switch strings.ToLower(filepath.Ext(doc.Name)) {
	case ".txt", ".md", ".csv":
		return utf8.Valid(doc.Data)
	}
	return false
}

func extractPDF(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}

// Truncate limits text to max runes; max <= 0 means no limit.
func Truncate(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	return string([]rune(text)[:max])
}

var _ Extractor = TextExtractor{}
