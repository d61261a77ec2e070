package feed

import (
	"time"
)

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
}

// Item is one feed entry. Summary is the plain-text description and is
// only ever a placeholder for the full article.
type Item struct {
	GUID        string
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time
	Author      string
	Categories  []string
}

// Channel describes the RSS channel rendered for a topic's queue.
type Channel struct {
	Topic       string
	Title       string
	Description string
}
