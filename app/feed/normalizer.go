package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	titleFields     = []string{"title", "url", "link"}
	linkFields      = []string{"link", "url", "guid", "home_page_url"}
	timestampFields = []string{"pubDate", "isoDate", "date", "date_published"}
)

// DateFallback decides the timestamp of an item that carries no date at all.
type DateFallback string

const (
	// FallbackKeep leaves the timestamp unparsed with an empty raw value.
	FallbackKeep DateFallback = "keep"
	// FallbackNow substitutes the observation time and marks it Substituted.
	FallbackNow DateFallback = "now"
)

const DefaultRecentWindow = 8 * time.Hour

type Normalizer struct {
	fallback     DateFallback
	recentWindow time.Duration
	now          func() time.Time
}

func NewNormalizer(fallback DateFallback, recentWindow time.Duration) *Normalizer {
	if fallback == "" {
		fallback = FallbackKeep
	}
	if recentWindow <= 0 {
		recentWindow = DefaultRecentWindow
	}
	return &Normalizer{
		fallback:     fallback,
		recentWindow: recentWindow,
		now:          time.Now,
	}
}

// WithClock returns a copy observing time through now.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	c := *n
	c.now = now
	return &c
}

// ResolveTitle returns the first candidate that is present and non-empty.
func (n *Normalizer) ResolveTitle(f Fields) string {
	for _, key := range titleFields {
		if v, ok := f.Field(key); ok {
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// ResolveLink returns the first candidate that is present, even when empty.
func (n *Normalizer) ResolveLink(f Fields) string {
	for _, key := range linkFields {
		if v, ok := f.Field(key); ok {
			return stringify(v)
		}
	}
	return ""
}

func (n *Normalizer) ResolveTimestamp(f Fields) Timestamp {
	for _, key := range timestampFields {
		v, ok := f.Field(key)
		if !ok {
			continue
		}
		raw := stringify(v)
		if raw == "" {
			continue
		}
		return parseTimestamp(raw)
	}

	if n.fallback == FallbackNow {
		return Timestamp{Millis: n.now().UnixMilli(), Parsed: true, Substituted: true}
	}
	return Timestamp{}
}

func (n *Normalizer) IsRecent(ts Timestamp) bool {
	if !ts.Parsed || ts.Substituted {
		return false
	}
	// future-dated items are not recent
	age := n.now().Sub(ts.Time())
	return age >= 0 && age <= n.recentWindow
}

func (n *Normalizer) Normalize(meta FeedMeta, item RawItem, category string) NormalizedItem {
	ts := n.ResolveTimestamp(item)
	return NormalizedItem{
		Title:     n.ResolveTitle(item),
		Link:      n.ResolveLink(item),
		Timestamp: ts,
		FeedName:  n.ResolveTitle(meta),
		FeedLink:  n.ResolveLink(meta),
		Category:  category,
		IsRecent:  n.IsRecent(ts),
	}
}

func (n *Normalizer) NormalizeFeed(raw *RawFeed, category string) []NormalizedItem {
	items := make([]NormalizedItem, 0, len(raw.Items))
	for _, item := range raw.Items {
		items = append(items, n.Normalize(raw.Meta, item, category))
	}
	return items
}

func parseTimestamp(raw string) Timestamp {
	t, err := dateparse.ParseIn(strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return Timestamp{Raw: raw}
	}
	return Timestamp{Millis: t.UnixMilli(), Raw: raw, Parsed: true}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "true"
		}
		return ""
	case map[string]any:
		// Atom-in-JSON style {"href": "..."} links
		if href, ok := val["href"].(string); ok {
			return href
		}
		return ""
	default:
		return fmt.Sprint(val)
	}
}
