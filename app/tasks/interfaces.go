package tasks

import (
	"context"

	"github.com/lysyi3m/feed-digest/app/feed"
)

// SourceFetcher retrieves and parses one source.
type SourceFetcher interface {
	Fetch(ctx context.Context, source feed.Source) (*feed.RawFeed, error)
}

var _ SourceFetcher = (*feed.Fetcher)(nil)

// Aggregator runs the whole pipeline over a catalog.
// Example usage:
//
//	scheduler := NewScheduler(fetcher, normalizer, Options{Concurrency: 4, WaveDelay: 850 * time.Millisecond})
//	result := scheduler.Run(ctx, catalog)
type Aggregator interface {
	Run(ctx context.Context, catalog *feed.Catalog) *Result
}
