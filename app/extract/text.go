package extract

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true)

// cleanText strips tags from an HTML fragment, decodes entities and
// collapses whitespace.
func cleanText(fragment string) string {
	stripped := stripPolicy.Sanitize(fragment)
	return collapseWhitespace(html.UnescapeString(stripped))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func selectionText(sel *goquery.Selection) string {
	fragment, err := goquery.OuterHtml(sel)
	if err != nil {
		return collapseWhitespace(sel.Text())
	}
	return cleanText(fragment)
}

func countParagraphs(sel *goquery.Selection, text string) int {
	count := 0
	counter := func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.Text()) != "" {
			count++
		}
	}

	sel.Find("p").Each(counter)
	if count == 0 {
		sel.Find("li, blockquote, pre").Each(counter)
	}
	if count == 0 && text != "" {
		return 1
	}
	return count
}

// markupRatio is the share of a fragment taken by element tags once
// attributes are left out, measured against its visible text. Prose wrapped
// in paragraphs stays low; div and span soup around single words runs high.
func markupRatio(sel *goquery.Selection, text string) float64 {
	tags := 0
	sel.Find("*").AddSelection(sel).Each(func(_ int, el *goquery.Selection) {
		// "<name>" plus "</name>"
		tags += 2*len(goquery.NodeName(el)) + 5
	})
	total := tags + len(text)
	if total == 0 {
		return 0
	}
	return float64(tags) / float64(total)
}
