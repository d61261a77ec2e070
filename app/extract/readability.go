package extract

import (
	"bytes"
	"log/slog"
	"strings"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
)

// runReadability runs the readability algorithm over raw and fills the body
// fields of article. It reports false when nothing usable came out.
func (e *Extractor) runReadability(raw []byte, article *Article) bool {
	parsed, err := readability.FromReader(bytes.NewReader(raw), nil)
	if err != nil {
		slog.Debug("Readability failed", "url", article.SourceURL, "error", err)
		return false
	}

	var htmlBuf strings.Builder
	if err := parsed.RenderHTML(&htmlBuf); err == nil && strings.TrimSpace(htmlBuf.String()) != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBuf.String()))
		if err == nil {
			text := selectionText(doc.Selection)
			if text != "" {
				fill(article, doc.Find("body"), text)
				article.Method = MethodReadability
				article.Confidence = readabilityConfidence
				article.LowConfidence = false
				return true
			}
		}
	}

	var textBuf strings.Builder
	if err := parsed.RenderText(&textBuf); err != nil {
		return false
	}
	text := collapseWhitespace(textBuf.String())
	if text == "" {
		return false
	}

	fillText(article, text)
	article.Method = MethodReadability
	article.Confidence = readabilityConfidence
	article.LowConfidence = false
	return true
}
