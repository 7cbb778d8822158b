package render

import (
	"time"

	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

// Payload is everything a renderer may use.
type Payload struct {
	Categories  []string
	Groups      map[string][]feed.NormalizedItem
	Errors      []string
	Info        map[string]any
	GeneratedAt time.Time
}

func NewPayload(result *tasks.Result, info map[string]any) Payload {
	return Payload{
		Categories:  result.Categories,
		Groups:      result.Groups,
		Errors:      result.ErrorMessages(),
		Info:        info,
		GeneratedAt: result.FinishedAt,
	}
}

func (p Payload) Items() []feed.NormalizedItem {
	var items []feed.NormalizedItem
	for _, category := range p.Categories {
		items = append(items, p.Groups[category]...)
	}
	return items
}

type Renderer interface {
	Run(payload Payload) (string, error)
}

var (
	_ Renderer = (*HTML)(nil)
	_ Renderer = (*RSS)(nil)
)
