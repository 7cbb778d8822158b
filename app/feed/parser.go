package feed

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run reads body according to kind. Unknown content yields an empty feed.
func (p *Parser) Run(data []byte, kind Kind) (*RawFeed, error) {
	switch kind {
	case KindText:
		return p.parseSyndication(data)
	case KindJSON:
		return p.parseJSON(data)
	default:
		return &RawFeed{Items: []RawItem{}}, nil
	}
}

func (p *Parser) parseSyndication(data []byte) (*RawFeed, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	raw := &RawFeed{
		Meta:  FeedMeta{Syndication: feed, Extra: customFields(feed.Custom)},
		Items: make([]RawItem, 0, len(feed.Items)),
	}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		raw.Items = append(raw.Items, RawItem{
			Syndication: item,
			Extra:       customFields(item.Custom),
		})
	}

	return raw, nil
}

func (p *Parser) parseJSON(data []byte) (*RawFeed, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON feed: %w", err)
	}

	meta := FeedMeta{JSON: &JSONFeed{}, Extra: make(map[string]any, len(doc))}
	for key, value := range doc {
		switch key {
		case "items":
		case "title":
			meta.JSON.Title = stringPtr(value)
		case "home_page_url":
			meta.JSON.HomePageURL = stringPtr(value)
		case "feed_url":
			meta.JSON.FeedURL = stringPtr(value)
		default:
			meta.Extra[key] = value
		}
	}

	raw := &RawFeed{Meta: meta, Items: []RawItem{}}

	entries, ok := doc["items"]
	if !ok || entries == nil {
		return raw, nil
	}
	list, ok := entries.([]any)
	if !ok {
		return nil, fmt.Errorf("failed to parse JSON feed: items is %T, not an array", entries)
	}

	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("failed to parse JSON feed: item %d is %T, not an object", i, entry)
		}
		raw.Items = append(raw.Items, jsonItem(obj))
	}

	return raw, nil
}

func jsonItem(obj map[string]any) RawItem {
	item := RawItem{JSON: &JSONItem{}, Extra: make(map[string]any, len(obj))}
	for key, value := range obj {
		switch key {
		case "id":
			item.JSON.ID = stringPtr(value)
		case "url":
			item.JSON.URL = stringPtr(value)
		case "external_url":
			item.JSON.ExternalURL = stringPtr(value)
		case "title":
			item.JSON.Title = stringPtr(value)
		case "date_published":
			item.JSON.DatePublished = stringPtr(value)
		case "date_modified":
			item.JSON.DateModified = stringPtr(value)
		default:
			item.Extra[key] = value
		}
	}
	return item
}

// A present key always yields a non-nil pointer so presence survives.
func stringPtr(v any) *string {
	s := stringify(v)
	return &s
}

func customFields(custom map[string]string) map[string]any {
	if len(custom) == 0 {
		return nil
	}
	extra := make(map[string]any, len(custom))
	for key, value := range custom {
		extra[key] = value
	}
	return extra
}
