package feed

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// fallbackSelectors locate show notes on episode pages readability
// cannot score, in order of preference.
var fallbackSelectors = []string{
	".show-notes",
	".episode-notes",
	".episode-description",
	"article",
	"main",
}

type ShowNotesExtractor struct{}

func NewShowNotesExtractor() *ShowNotesExtractor {
	return &ShowNotesExtractor{}
}

// Run returns the main content of an episode page as HTML.
func (e *ShowNotesExtractor) Run(data []byte, pageURL string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	var base *url.URL
	if pageURL != "" {
		if u, err := url.Parse(pageURL); err == nil {
			base = u
		}
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		slog.Debug("Show notes extracted",
			"title", article.Title,
			"content_length", len(article.Content))
		return article.Content, nil
	}

	notes, ferr := e.fallback(data)
	if ferr != nil {
		if err != nil {
			return "", fmt.Errorf("failed to extract show notes: %w", err)
		}
		return "", ferr
	}

	slog.Debug("Show notes extracted by selector", "content_length", len(notes))
	return notes, nil
}

func (e *ShowNotesExtractor) fallback(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer").Remove()

	for _, selector := range fallbackSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 || strings.TrimSpace(sel.Text()) == "" {
			continue
		}
		notes, err := sel.Html()
		if err != nil {
			return "", fmt.Errorf("failed to render %s: %w", selector, err)
		}
		return strings.TrimSpace(notes), nil
	}

	return "", fmt.Errorf("no content extracted from HTML data")
}
