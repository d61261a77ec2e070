package discovery

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/lysyi3m/topic-harvest/app/urlnorm"
)

const articleBlockSelector = "article, [itemtype*='Article'], [role='article']"

// HeuristicStrategy looks for semantic article blocks on listing pages and
// takes the headline link of each.
type HeuristicStrategy struct {
	getter Getter
}

func NewHeuristicStrategy(getter Getter) *HeuristicStrategy {
	return &HeuristicStrategy{getter: getter}
}

func (s *HeuristicStrategy) Name() string {
	return StrategyHeuristic
}

func (s *HeuristicStrategy) Discover(ctx context.Context, target Target) ([]Candidate, error) {
	var candidates []Candidate
	var errs []error
	pages := target.listingPages()

	for _, page := range pages {
		doc, base, err := loadPage(ctx, s.getter, target, page)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		doc.Find(articleBlockSelector).Each(func(_ int, block *goquery.Selection) {
			// Nested matches are handled by their outermost block.
			if block.ParentsFiltered(articleBlockSelector).Length() > 0 {
				return
			}

			anchor := block.Find("h1 a[href], h2 a[href], h3 a[href], [itemprop='url'][href]").First()
			if anchor.Length() == 0 {
				anchor = block.Find("a[href]").First()
			}
			if anchor.Length() == 0 {
				return
			}

			link, err := urlnorm.Absolute(base, anchor.AttrOr("href", ""))
			if err != nil || !urlnorm.SameHost(link, page) || !looksLikeArticle(link, page) {
				return
			}

			candidate, ok := newCandidate(link, StrategyHeuristic)
			if !ok {
				return
			}

			title := block.Find("h1, h2, h3, [itemprop='headline']").First().Text()
			if title == "" {
				title = anchor.Text()
			}
			candidate.Title = strings.Join(strings.Fields(title), " ")

			if stamp := block.Find("time[datetime]").First().AttrOr("datetime", ""); stamp != "" {
				if published, err := dateparse.ParseAny(stamp); err == nil {
					candidate.PublishedAt = &published
				}
			}

			candidates = append(candidates, candidate)
		})
	}

	if len(errs) == len(pages) {
		return nil, errors.Join(errs...)
	}
	return candidates, nil
}
