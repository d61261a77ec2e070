// Package quality decides whether an extracted article is good enough to
// store as full text.
package quality

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lysyi3m/topic-harvest/app/extract"
)

type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusRetry Status = "RETRY"
)

type Config struct {
	MinWordCountHardFail      int
	MinWordCountQualityTarget int
	MaxWordCount              int
	MinParagraphs             int
	MinParagraphsSnippet      int
	MinTitleLength            int
	MaxTitleLength            int
	MaxMarkupRatio            float64
	BlacklistPhrases          []string
}

func DefaultConfig() Config {
	return Config{
		MinWordCountHardFail:      50,
		MinWordCountQualityTarget: 200,
		MaxWordCount:              10000,
		MinParagraphs:             2,
		MinParagraphsSnippet:      1,
		MinTitleLength:            10,
		MaxTitleLength:            200,
		MaxMarkupRatio:            0.30,
		BlacklistPhrases: []string{
			"subscribe to continue reading",
			"this content is for subscribers only",
			"please enable javascript",
			"access denied",
			"page not found",
			"sign in to read",
			"you have reached your article limit",
			"cookies are required",
		},
	}
}

type Options struct {
	Snippet bool
}

type Result struct {
	Status      Status
	Reasons     []string
	Score       float64
	BelowTarget bool
}

func (r Result) Passed() bool {
	return r.Status == StatusPass
}

type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

var (
	tagPattern = regexp.MustCompile(`<[^>]+>`)
	// "Story - Site Name", "Story | Site", "Story » Blog"
	boilerplateSuffix = regexp.MustCompile(`\s([|\-–—:·»])\s([^|\-–—:·»]{1,40})$`)

	nameConnectors = map[string]bool{"of": true, "the": true, "and": true, "&": true, "on": true}
)

const maxSiteNameWords = 4

// Run checks article against the configured rules. Extraction-shaped
// failures yield RETRY so the caller can try another strategy; anything
// else is a FAIL.
func (v *Validator) Run(article *extract.Article, opts Options) Result {
	if article == nil {
		return Result{Status: StatusFail, Reasons: []string{"no article"}}
	}

	var retryable, fatal []string

	words := article.WordCount
	if words < v.cfg.MinWordCountHardFail {
		retryable = append(retryable, fmt.Sprintf("word count %d below minimum %d", words, v.cfg.MinWordCountHardFail))
	}
	if v.cfg.MaxWordCount > 0 && words > v.cfg.MaxWordCount {
		fatal = append(fatal, fmt.Sprintf("word count %d above maximum %d", words, v.cfg.MaxWordCount))
	}

	minParagraphs := v.cfg.MinParagraphs
	if opts.Snippet {
		minParagraphs = v.cfg.MinParagraphsSnippet
	}
	if article.ParagraphCount < minParagraphs {
		retryable = append(retryable, fmt.Sprintf("paragraph count %d below minimum %d", article.ParagraphCount, minParagraphs))
	}

	if ratio := max(article.MarkupRatio, MarkupRatio(article.Body)); ratio >= v.cfg.MaxMarkupRatio {
		retryable = append(retryable, fmt.Sprintf("markup ratio %.2f exceeds %.2f", ratio, v.cfg.MaxMarkupRatio))
	}

	fatal = append(fatal, v.titleProblems(article)...)

	if phrase, ok := v.onlyBlacklisted(article.Body); ok {
		fatal = append(fatal, fmt.Sprintf("content is blacklisted phrase %q", phrase))
	}

	result := Result{Score: v.score(article)}
	result.BelowTarget = words < v.cfg.MinWordCountQualityTarget

	switch {
	case len(fatal) > 0:
		result.Status = StatusFail
	case len(retryable) > 0:
		result.Status = StatusRetry
	default:
		result.Status = StatusPass
	}
	result.Reasons = append(retryable, fatal...)

	return result
}

func (v *Validator) titleProblems(article *extract.Article) []string {
	title := strings.TrimSpace(article.Title)
	if title == "" {
		return []string{"title missing"}
	}

	var problems []string
	length := len([]rune(title))
	if length < v.cfg.MinTitleLength {
		problems = append(problems, fmt.Sprintf("title length %d below minimum %d", length, v.cfg.MinTitleLength))
	}
	if length > v.cfg.MaxTitleLength {
		problems = append(problems, fmt.Sprintf("title length %d above maximum %d", length, v.cfg.MaxTitleLength))
	}
	if IsGenericTitle(title, article.PageTitle) {
		problems = append(problems, "title is the page title with site boilerplate")
	}
	return problems
}

// IsGenericTitle reports whether title is the verbatim document title
// still carrying a site-name suffix.
func IsGenericTitle(title, pageTitle string) bool {
	title = strings.TrimSpace(title)
	if title == "" || title != strings.TrimSpace(pageTitle) {
		return false
	}
	return hasSiteSuffix(title)
}

// hasSiteSuffix reports whether title ends in a separator followed by a
// short tail. Pipes, bullets and guillemets always mark a site name; dashes
// and colons also join headline clauses, so their tail must read like a
// name: a few capitalized words.
func hasSiteSuffix(title string) bool {
	m := boilerplateSuffix.FindStringSubmatch(title)
	if m == nil {
		return false
	}

	switch m[1] {
	case "|", "·", "»":
		return true
	}

	words := strings.Fields(m[2])
	if len(words) == 0 || len(words) > maxSiteNameWords {
		return false
	}
	for i, word := range words {
		if i > 0 && nameConnectors[strings.ToLower(word)] {
			continue
		}
		r, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// MarkupRatio is the share of body characters that sit inside leftover
// HTML tags, which only escaped markup survives extraction as.
func MarkupRatio(body string) float64 {
	if body == "" {
		return 0
	}
	markup := 0
	for _, tag := range tagPattern.FindAllString(body, -1) {
		markup += len(tag)
	}
	return float64(markup) / float64(len(body))
}

func (v *Validator) onlyBlacklisted(body string) (string, bool) {
	lower := strings.ToLower(body)
	if strings.TrimSpace(lower) == "" {
		return "", false
	}

	for _, phrase := range v.cfg.BlacklistPhrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" || !strings.Contains(lower, phrase) {
			continue
		}
		rest := strings.ReplaceAll(lower, phrase, " ")
		if len(strings.FieldsFunc(rest, isSeparator)) < 3 {
			return phrase, true
		}
	}
	return "", false
}

func isSeparator(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
}

func (v *Validator) score(article *extract.Article) float64 {
	target := v.cfg.MinWordCountQualityTarget
	if target <= 0 {
		target = 1
	}

	score := float64(article.WordCount) / float64(target)
	if score > 1 {
		score = 1
	}

	confidence := article.Confidence
	if confidence <= 0 {
		confidence = 0.5
	}
	score = score*0.7 + confidence*0.3

	if article.LowConfidence {
		score *= 0.8
	}
	return score
}
