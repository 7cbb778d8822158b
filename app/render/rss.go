package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"time"
)

type RSS struct {
	title   string
	link    string
	selfURL string
	version string
}

func NewRSS(title, link, selfURL, version string) *RSS {
	return &RSS{title: title, link: link, selfURL: selfURL, version: version}
}

func (g *RSS) Run(payload Payload) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", g.title, 4)
	g.writeElement(&buf, "link", g.link, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Digest of %d categories", len(payload.Categories)), 4)

	if g.selfURL != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(g.selfURL)))
	}

	lastBuildDate := payload.GeneratedAt
	if lastBuildDate.IsZero() {
		lastBuildDate = time.Now()
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.In(time.Local).Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Feed-Digest/%s", g.version), 4)

	for _, item := range payload.Items() {
		g.writeItem(&buf, item.Title, item.Link, item.FeedName, item.Category, item.Timestamp.Time(), item.Timestamp.Parsed && !item.Timestamp.Substituted)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *RSS) writeItem(buf *bytes.Buffer, title, link, feedName, category string, published time.Time, dated bool) {
	buf.WriteString("    <item>\n")

	if link != "" {
		buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(link)))
		xml.EscapeText(buf, []byte(link))
		buf.WriteString("</guid>\n")
	}

	g.writeElement(buf, "title", title, 6)
	g.writeElement(buf, "link", link, 6)
	if feedName != "" {
		g.writeElement(buf, "description", fmt.Sprintf("From %s", feedName), 6)
	}

	if dated {
		g.writeElement(buf, "pubDate", published.In(time.Local).Format(time.RFC1123Z), 6)
	}

	g.writeElement(buf, "category", category, 6)

	buf.WriteString("    </item>\n")
}

func (g *RSS) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
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

func (g *RSS) isURL(s string) bool {
	return (len(s) > 7 && s[:7] == "http://") || (len(s) > 8 && s[:8] == "https://")
}
