package feed

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
)

// Source is one configured feed URL and the category it belongs to.
type Source struct {
	URL      string
	Category string
}

// Category is a named, ordered list of feed URLs.
type Category struct {
	Name string
	URLs []string
}

// Catalog holds the configured categories in document order.
type Catalog struct {
	Categories []Category
}

func (c *Catalog) Names() []string {
	return lo.Map(c.Categories, func(category Category, _ int) string {
		return category.Name
	})
}

// Sources flattens the catalog in discovery order.
func (c *Catalog) Sources() []Source {
	return lo.FlatMap(c.Categories, func(category Category, _ int) []Source {
		return lo.Map(category.URLs, func(url string, _ int) Source {
			return Source{URL: url, Category: category.Name}
		})
	})
}

// Fields exposes the keys a feed document actually provided.
type Fields interface {
	Field(key string) (any, bool)
}

// JSONFeed holds the feed-level keys of a JSON Feed document that are mapped
// explicitly. A nil pointer means the key was absent.
type JSONFeed struct {
	Title       *string
	HomePageURL *string
	FeedURL     *string
}

// JSONItem holds the item-level JSON Feed keys that are mapped explicitly.
type JSONItem struct {
	ID            *string
	URL           *string
	ExternalURL   *string
	Title         *string
	DatePublished *string
	DateModified  *string
}

// FeedMeta is feed-level metadata. Exactly one of Syndication or JSON is set
// for a parsed feed; Extra carries every other key the source provided.
type FeedMeta struct {
	Syndication *gofeed.Feed
	JSON        *JSONFeed
	Extra       map[string]any
}

// RawItem is one entry as the source provided it. Exactly one of Syndication
// or JSON is set; Extra carries every other key.
type RawItem struct {
	Syndication *gofeed.Item
	JSON        *JSONItem
	Extra       map[string]any
}

type RawFeed struct {
	Meta  FeedMeta
	Items []RawItem
}

func (m FeedMeta) Field(key string) (any, bool) {
	switch {
	case m.Syndication != nil:
		if v, ok := syndicationFeedField(m.Syndication, key); ok {
			return v, true
		}
	case m.JSON != nil:
		if v, ok := jsonFeedField(m.JSON, key); ok {
			return v, true
		}
	}
	v, ok := m.Extra[key]
	return v, ok
}

func (i RawItem) Field(key string) (any, bool) {
	switch {
	case i.Syndication != nil:
		if v, ok := syndicationItemField(i.Syndication, key); ok {
			return v, true
		}
	case i.JSON != nil:
		if v, ok := jsonItemField(i.JSON, key); ok {
			return v, true
		}
	}
	v, ok := i.Extra[key]
	return v, ok
}

// gofeed does not distinguish an empty element from a missing one, so markup
// fields count as present once gofeed populated them.
func syndicationFeedField(f *gofeed.Feed, key string) (any, bool) {
	switch key {
	case "title":
		return present(f.Title)
	case "link":
		return present(f.Link)
	case "feedUrl":
		return present(f.FeedLink)
	}
	return nil, false
}

func syndicationItemField(item *gofeed.Item, key string) (any, bool) {
	switch key {
	case "title":
		return present(item.Title)
	case "link":
		// an empty <link/> reads as absent, so resolution moves on to guid
		return present(item.Link)
	case "guid":
		return present(item.GUID)
	case "pubDate":
		// Atom entries without <published> fall back to <updated>
		if item.Published != "" {
			return item.Published, true
		}
		return present(item.Updated)
	case "isoDate":
		parsed := item.PublishedParsed
		if parsed == nil {
			parsed = item.UpdatedParsed
		}
		if parsed != nil {
			return parsed.UTC().Format(time.RFC3339Nano), true
		}
	case "date":
		if item.DublinCoreExt != nil && len(item.DublinCoreExt.Date) > 0 {
			return present(item.DublinCoreExt.Date[0])
		}
	}
	return nil, false
}

func jsonFeedField(f *JSONFeed, key string) (any, bool) {
	switch key {
	case "title":
		return deref(f.Title)
	case "home_page_url":
		return deref(f.HomePageURL)
	case "feed_url":
		return deref(f.FeedURL)
	}
	return nil, false
}

func jsonItemField(item *JSONItem, key string) (any, bool) {
	switch key {
	case "id":
		return deref(item.ID)
	case "url":
		return deref(item.URL)
	case "external_url":
		return deref(item.ExternalURL)
	case "title":
		return deref(item.Title)
	case "date_published":
		return deref(item.DatePublished)
	case "date_modified":
		return deref(item.DateModified)
	}
	return nil, false
}

func present(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func deref(s *string) (any, bool) {
	if s == nil {
		return nil, false
	}
	return *s, true
}

// Timestamp is epoch milliseconds when the source date parsed, otherwise the
// verbatim source string.
type Timestamp struct {
	Millis      int64
	Raw         string
	Parsed      bool
	Substituted bool // set by the "now" fallback when the item had no date
}

func (t Timestamp) Time() time.Time {
	if !t.Parsed {
		return time.Time{}
	}
	return time.UnixMilli(t.Millis)
}

func (t Timestamp) String() string {
	if t.Parsed {
		return strconv.FormatInt(t.Millis, 10)
	}
	return t.Raw
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Parsed {
		return []byte(strconv.FormatInt(t.Millis, 10)), nil
	}
	return json.Marshal(t.Raw)
}

// NormalizedItem is the canonical unit handed to renderers.
type NormalizedItem struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Timestamp Timestamp `json:"timestamp"`
	FeedName  string    `json:"feedName"`
	FeedLink  string    `json:"feedLink"`
	Category  string    `json:"category"`
	IsRecent  bool      `json:"isRecent"`
}
