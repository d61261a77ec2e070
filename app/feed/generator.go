package feed

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/lysyi3m/topic-harvest/app/cfg"
	"github.com/lysyi3m/topic-harvest/app/database"
)

// Generator renders a topic's generation queue as RSS 2.0 so downstream
// consumers can pick up approved articles.
type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Run(channel Channel, items []database.QueuedArticle) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	selfLink := g.selfLink(channel.Topic)

	g.writeElement(&buf, "title", cmp.Or(channel.Title, fmt.Sprintf("Topic: %s", channel.Topic)), 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", cmp.Or(channel.Description, fmt.Sprintf("Approved articles queued for %s", channel.Topic)), 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := time.Now().In(time.Local)
	if len(items) > 0 {
		lastBuildDate = cmp.Or(items[0].EnqueuedAt, items[0].CreatedAt, lastBuildDate)
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Topic-Harvest/%s", cfg.Get().Version), 4)

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) selfLink(topic string) string {
	path := "/topics/" + url.PathEscape(topic) + "/feed"
	if cfg.Get().BaseUrl != "" {
		return strings.TrimSuffix(cfg.Get().BaseUrl, "/") + path
	}
	return fmt.Sprintf("http://localhost:%s%s", cfg.Get().Port, path)
}

func (g *Generator) writeItem(buf *bytes.Buffer, item database.QueuedArticle) {
	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(item.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", item.Title, 6)
	g.writeElement(buf, "link", item.URL, 6)
	g.writeElement(buf, "description", g.excerpt(item.Body, 60), 6)

	if item.Body != "" {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(item.Body, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	pubDate := item.CreatedAt
	if item.PublishedAt != nil {
		pubDate = *item.PublishedAt
	}
	g.writeElement(buf, "pubDate", pubDate.Format(time.RFC1123Z), 6)

	g.writeElement(buf, "author", item.Author, 6)
	g.writeElement(buf, "category", item.SourceName, 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) excerpt(body string, words int) string {
	fields := strings.Fields(body)
	if len(fields) <= words {
		return strings.Join(fields, " ")
	}
	return strings.Join(fields[:words], " ") + "…"
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
