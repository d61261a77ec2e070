package extract

import (
	"strings"
)

// Selectors is an ordered set of CSS selectors per article field. An entry
// may end in "@attr" to read that attribute instead of the element text.
type Selectors struct {
	Title  []string `yaml:"title"`
	Body   []string `yaml:"body"`
	Date   []string `yaml:"date"`
	Author []string `yaml:"author"`
}

type Origin string

const (
	OriginOverride Origin = "override"
	OriginSite     Origin = "site"
	OriginGeneric  Origin = "generic"
	OriginFallback Origin = "fallback"
)

type Rule struct {
	Selector string
	Attr     string
	Origin   Origin
}

func (r Rule) String() string {
	if r.Attr != "" {
		return r.Selector + "@" + r.Attr
	}
	return r.Selector
}

func parseRule(entry string, origin Origin) Rule {
	entry = strings.TrimSpace(entry)
	if i := strings.LastIndex(entry, "@"); i > 0 && !strings.ContainsAny(entry[i+1:], " ]'\"") {
		return Rule{Selector: strings.TrimSpace(entry[:i]), Attr: entry[i+1:], Origin: origin}
	}
	return Rule{Selector: entry, Origin: origin}
}

func rules(entries []string, origin Origin) []Rule {
	out := make([]Rule, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		out = append(out, parseRule(entry, origin))
	}
	return out
}

var genericSelectors = Selectors{
	Title: []string{
		"meta[property='og:title']@content",
		"article h1",
		"h1[itemprop='headline']",
		"meta[name='twitter:title']@content",
	},
	Body: []string{
		"[itemprop='articleBody']",
		"article .article-body",
		"article .content",
		"article",
		"[role='main']",
		"main",
		"#content",
		".content",
	},
	Date: []string{
		"meta[property='article:published_time']@content",
		"meta[itemprop='datePublished']@content",
		"[itemprop='datePublished']@datetime",
		"time[datetime]@datetime",
		"meta[name='date']@content",
		"meta[name='pubdate']@content",
	},
	Author: []string{
		"meta[name='author']@content",
		"meta[property='article:author']@content",
		"[itemprop='author'] [itemprop='name']",
		"[rel='author']",
		".byline",
		".author",
	},
}

var fallbackSelectors = Selectors{
	Title:  []string{"h1", "title"},
	Body:   []string{"body"},
	Date:   []string{"time"},
	Author: nil,
}

// SitePatterns holds selectors for well known publishing platforms.
var SitePatterns = map[string]Selectors{
	"wordpress": {
		Title:  []string{"h1.entry-title", "h1.post-title"},
		Body:   []string{".entry-content", ".post-content"},
		Date:   []string{"time.entry-date@datetime", "time.published@datetime"},
		Author: []string{".author.vcard a", ".byline .author"},
	},
	"ghost": {
		Title:  []string{"h1.article-title", "h1.post-full-title"},
		Body:   []string{".gh-content", ".post-full-content"},
		Date:   []string{"time.byline-meta-date@datetime", "time.post-full-meta-date@datetime"},
		Author: []string{".article-byline-content .author-name a", ".author-card-name"},
	},
	"medium": {
		Title:  []string{"h1[data-testid='storyTitle']", "h1.pw-post-title"},
		Body:   []string{"article section", "article"},
		Date:   []string{"[data-testid='storyPublishDate']"},
		Author: []string{"[data-testid='authorName']"},
	},
	"substack": {
		Title:  []string{"h1.post-title"},
		Body:   []string{".available-content .body", ".body.markup"},
		Date:   []string{".post-date@title"},
		Author: []string{".byline-names a", ".profile-hover-card-target a"},
	},
	"blogger": {
		Title:  []string{"h3.post-title", "h1.post-title"},
		Body:   []string{".post-body"},
		Date:   []string{"abbr.published@title", ".date-header span"},
		Author: []string{".post-author .fn", ".g-profile span"},
	},
}

// DetectFamily guesses the publishing platform from the generator meta
// value and the page host. It returns "" when nothing matches.
func DetectFamily(generator, host string) string {
	generator = strings.ToLower(generator)
	for _, family := range []string{"wordpress", "ghost", "blogger", "medium", "substack"} {
		if strings.Contains(generator, family) {
			return family
		}
	}

	host = strings.ToLower(host)
	switch {
	case strings.HasSuffix(host, "medium.com"):
		return "medium"
	case strings.HasSuffix(host, "substack.com"):
		return "substack"
	case strings.Contains(host, "blogspot."):
		return "blogger"
	case strings.HasSuffix(host, "ghost.io"):
		return "ghost"
	case strings.HasSuffix(host, "wordpress.com"):
		return "wordpress"
	}
	return ""
}

// Plan is a resolved selector set for one source. Site patterns are
// spliced in per page because the family is detected from the document.
type Plan struct {
	Title, Body, Date, Author []Rule

	family string
}

// Resolve merges per-source overrides with the built-in generic and
// fallback selectors. A non-empty family pins the site pattern instead of
// detecting it per page. The package-level tables are never modified.
func Resolve(override Selectors, family string) *Plan {
	return &Plan{
		Title:  rules(override.Title, OriginOverride),
		Body:   rules(override.Body, OriginOverride),
		Date:   rules(override.Date, OriginOverride),
		Author: rules(override.Author, OriginOverride),
		family: family,
	}
}

type fieldRules struct {
	Title, Body, Date, Author []Rule
}

func (p *Plan) forFamily(family string) fieldRules {
	if p.family != "" {
		family = p.family
	}
	site := SitePatterns[family]

	join := func(override []Rule, siteEntries, generic, fallback []string) []Rule {
		out := make([]Rule, 0, len(override)+len(siteEntries)+len(generic)+len(fallback))
		out = append(out, override...)
		out = append(out, rules(siteEntries, OriginSite)...)
		out = append(out, rules(generic, OriginGeneric)...)
		out = append(out, rules(fallback, OriginFallback)...)
		return out
	}

	return fieldRules{
		Title:  join(p.Title, site.Title, genericSelectors.Title, fallbackSelectors.Title),
		Body:   join(p.Body, site.Body, genericSelectors.Body, fallbackSelectors.Body),
		Date:   join(p.Date, site.Date, genericSelectors.Date, fallbackSelectors.Date),
		Author: join(p.Author, site.Author, genericSelectors.Author, fallbackSelectors.Author),
	}
}
