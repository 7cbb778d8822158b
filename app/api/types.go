package api

import (
	"sync"

	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/lysyi3m/feed-digest/app/render"
	"github.com/lysyi3m/feed-digest/app/tasks"
)

type Handler struct {
	aggregator tasks.Aggregator
	catalog    *feed.Catalog
	page       render.Renderer
	digest     render.Renderer
	info       map[string]any

	// runMu serializes aggregation runs
	runMu sync.Mutex

	mu     sync.RWMutex
	result *tasks.Result
}
