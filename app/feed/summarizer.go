package feed

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

const DefaultSummaryLength = 280

var ErrNoSummary = errors.New("no summary extracted")

// Summarizer turns article HTML into a short plain-text description.
type Summarizer struct {
	maxLength int
}

func NewSummarizer(maxLength int) *Summarizer {
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}
	return &Summarizer{maxLength: maxLength}
}

func (s *Summarizer) Run(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty: %w", ErrNoSummary)
	}

	article, err := readability.FromReader(bytes.NewReader(data), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := strings.Join(strings.Fields(article.Excerpt), " ")
	if text == "" {
		text = strings.Join(strings.Fields(article.TextContent), " ")
	}
	if text == "" {
		return "", ErrNoSummary
	}

	summary := truncate(text, s.maxLength)

	slog.Debug("Summary extracted", "title", article.Title, "length", len(summary))

	return summary, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)
	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
