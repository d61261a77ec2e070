package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

var summaryPolicy = bluemonday.StrictPolicy()

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		normalized := p.normalizeItem(item)
		if normalized.Link == "" {
			continue
		}
		items = append(items, normalized)
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	link := strings.TrimSpace(item.Link)
	if link == "" && len(item.Links) > 0 {
		link = strings.TrimSpace(item.Links[0])
	}

	normalized := Item{
		GUID:       cmp.Or(item.GUID, link),
		Title:      strings.TrimSpace(item.Title),
		Link:       link,
		Summary:    plainText(cmp.Or(item.Description, item.Content)),
		Author:     p.extractAuthor(item),
		Categories: item.Categories,
	}

	if item.PublishedParsed != nil {
		normalized.PublishedAt = item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		normalized.PublishedAt = item.UpdatedParsed
	}

	return normalized
}

func (p *Parser) extractAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if authorStr := p.formatAuthor(author.Name, author.Email); authorStr != "" {
					return authorStr
				}
			}
		}
	} else if item.Author != nil {
		return p.formatAuthor(item.Author.Name, item.Author.Email)
	}

	return ""
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" {
		return name
	}
	return email
}

func plainText(fragment string) string {
	stripped := html.UnescapeString(summaryPolicy.Sanitize(fragment))
	return strings.Join(strings.Fields(stripped), " ")
}
