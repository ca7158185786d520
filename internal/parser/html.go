package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLExtractor converts HTML email bodies to plain text. Non-content
// elements are dropped entirely, including their inner text.
type HTMLExtractor struct {
	tagFallback *regexp.Regexp
}

// NewHTMLExtractor creates a new HTML extractor
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{
		tagFallback: regexp.MustCompile(`<[^>]+>`),
	}
}

// Extract returns the text content of an HTML document. Script, style,
// head, meta, title and link subtrees are removed before extraction, so
// their contents never leak into the body text. When the document cannot
// be parsed at all, a bare tag-strip is used instead.
func (e *HTMLExtractor) Extract(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return e.tagFallback.ReplaceAllString(html, "")
	}

	doc.Find("script, style, head, meta, title, link").Remove()

	// Block elements become line breaks so that paragraphs stay apart
	// in the extracted text.
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()

	lines := strings.Split(text, "\n")
	cleaned := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
