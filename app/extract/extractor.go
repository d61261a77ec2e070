package extract

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

const DefaultSubstantialWords = 50

const (
	MethodReadability = "readability"
)

type Article struct {
	Title          string
	PageTitle      string
	Body           string
	Author         string
	PublishedAt    *time.Time
	WordCount      int
	ParagraphCount int
	SourceURL      string
	Method         string
	Family         string
	Confidence     float64
	LowConfidence  bool
	// MarkupRatio is measured on the HTML fragment the body came from.
	MarkupRatio float64
}

type Failure struct {
	URL    string
	Reason string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", f.URL, f.Reason)
}

var noiseSelector = "script, style, noscript, template, nav, header, footer, aside, iframe, form, svg, button"

var originConfidence = map[Origin]float64{
	OriginOverride: 1.0,
	OriginSite:     0.9,
	OriginGeneric:  0.8,
}

const (
	readabilityConfidence = 0.6
	longestConfidence     = 0.3
)

type Extractor struct {
	substantialWords int
}

func NewExtractor(substantialWords int) *Extractor {
	if substantialWords <= 0 {
		substantialWords = DefaultSubstantialWords
	}
	return &Extractor{substantialWords: substantialWords}
}

// Run extracts the article from raw using the selector plan. Body
// selectors are tried in order, then readability, then the longest
// candidate seen.
func (e *Extractor) Run(raw []byte, pageURL string, plan *Plan) (*Article, error) {
	doc, fields, article, err := e.prepare(raw, pageURL, plan)
	if err != nil {
		return nil, err
	}

	if e.fromSelectors(doc, fields.Body, article) {
		return article, nil
	}

	if e.fromReadability(raw, article) {
		return article, nil
	}

	if e.fromLongest(doc, fields.Body, article) {
		return article, nil
	}

	return nil, &Failure{URL: pageURL, Reason: "no body content found"}
}

// RunReadability is the alternate strategy used when selector output did
// not pass validation. Metadata still comes from the selector plan.
func (e *Extractor) RunReadability(raw []byte, pageURL string, plan *Plan) (*Article, error) {
	_, _, article, err := e.prepare(raw, pageURL, plan)
	if err != nil {
		return nil, err
	}

	if !e.runReadability(raw, article) {
		return nil, &Failure{URL: pageURL, Reason: "readability produced no content"}
	}
	return article, nil
}

func (e *Extractor) prepare(raw []byte, pageURL string, plan *Plan) (*goquery.Document, fieldRules, *Article, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fieldRules{}, nil, &Failure{URL: pageURL, Reason: "empty document"}
	}
	if plan == nil {
		plan = Resolve(Selectors{}, "")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fieldRules{}, nil, &Failure{URL: pageURL, Reason: fmt.Sprintf("malformed HTML: %v", err)}
	}

	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Hostname()
	}
	generator, _ := doc.Find("meta[name='generator']").Attr("content")
	family := DetectFamily(generator, host)
	fields := plan.forFamily(family)
	if plan.family != "" {
		family = plan.family
	}

	article := &Article{
		SourceURL: pageURL,
		Family:    family,
		PageTitle: collapseWhitespace(doc.Find("head title").First().Text()),
	}

	// Metadata lives in head and header elements, so read it before noise
	// removal.
	article.Title = firstValue(doc, fields.Title)
	article.Author = firstValue(doc, fields.Author)
	article.PublishedAt = firstDate(doc, fields.Date)

	doc.Find(noiseSelector).Remove()

	return doc, fields, article, nil
}

func (e *Extractor) fromSelectors(doc *goquery.Document, body []Rule, article *Article) bool {
	for _, rule := range body {
		if rule.Origin == OriginFallback {
			continue
		}

		found := false
		doc.Find(rule.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := selectionText(sel)
			if countWords(text) < e.substantialWords {
				return true
			}
			fill(article, sel, text)
			article.Method = "selector:" + rule.String()
			article.Confidence = originConfidence[rule.Origin]
			found = true
			return false
		})
		if found {
			return true
		}
	}
	return false
}

func (e *Extractor) fromReadability(raw []byte, article *Article) bool {
	candidate := *article
	if !e.runReadability(raw, &candidate) {
		return false
	}
	if candidate.WordCount < e.substantialWords {
		return false
	}
	*article = candidate
	return true
}

func (e *Extractor) fromLongest(doc *goquery.Document, body []Rule, article *Article) bool {
	var bestSel *goquery.Selection
	var bestText, bestRule string
	bestWords := 0

	consider := func(rule Rule) {
		doc.Find(rule.Selector).Each(func(_ int, sel *goquery.Selection) {
			text := selectionText(sel)
			if words := countWords(text); words > bestWords {
				bestSel, bestText, bestRule, bestWords = sel, text, rule.String(), words
			}
		})
	}

	for _, rule := range body {
		if rule.Origin != OriginFallback {
			consider(rule)
		}
	}
	if bestWords == 0 {
		for _, rule := range body {
			if rule.Origin == OriginFallback {
				consider(rule)
			}
		}
	}
	if bestWords == 0 {
		return false
	}

	fill(article, bestSel, bestText)
	article.Method = "longest:" + bestRule
	article.Confidence = longestConfidence
	article.LowConfidence = true

	slog.Debug("Low confidence extraction", "url", article.SourceURL, "selector", bestRule, "words", bestWords)
	return true
}

func fill(article *Article, sel *goquery.Selection, text string) {
	article.Body = text
	article.WordCount = countWords(text)
	article.ParagraphCount = countParagraphs(sel, text)
	article.MarkupRatio = markupRatio(sel, text)
}

func fillText(article *Article, text string) {
	article.Body = text
	article.WordCount = countWords(text)
	article.ParagraphCount = 1
	article.MarkupRatio = 0
}

func firstValue(doc *goquery.Document, rules []Rule) string {
	for _, rule := range rules {
		value := ""
		doc.Find(rule.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if rule.Attr != "" {
				attr, _ := sel.Attr(rule.Attr)
				value = collapseWhitespace(attr)
			} else {
				value = collapseWhitespace(sel.Text())
			}
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func firstDate(doc *goquery.Document, rules []Rule) *time.Time {
	for _, rule := range rules {
		var parsed *time.Time
		doc.Find(rule.Selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			value := strings.TrimSpace(sel.Text())
			if rule.Attr != "" {
				value, _ = sel.Attr(rule.Attr)
			}
			if value == "" {
				return true
			}
			if t, err := dateparse.ParseAny(strings.TrimSpace(value)); err == nil {
				parsed = &t
				return false
			}
			return true
		})
		if parsed != nil {
			return parsed
		}
	}
	return nil
}
