package tasks

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lysyi3m/feed-digest/app/feed"
)

var _ TaskInterface = (*FetchSourceTask)(nil)

type FetchSourceTask struct {
	Task
	fetcher    SourceFetcher
	normalizer *feed.Normalizer

	Items []feed.NormalizedItem
}

func NewFetchSourceTask(source feed.Source, index int, fetcher SourceFetcher, normalizer *feed.Normalizer) *FetchSourceTask {
	return &FetchSourceTask{
		Task:       NewTask(TaskTypeFetchSource, source, index),
		fetcher:    fetcher,
		normalizer: normalizer,
	}
}

// Execute runs fetch, parse and normalization for one source. The returned
// error is always a *feed.FetchError or *feed.ParseError.
func (t *FetchSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		t.setState(TaskStateFetchFailed)
		return &feed.FetchError{Source: t.Source, Err: ctx.Err()}
	default:
	}

	t.setState(TaskStateFetching)

	raw, err := t.fetcher.Fetch(ctx, t.Source)
	if err != nil {
		var parseErr *feed.ParseError
		if errors.As(err, &parseErr) {
			t.setState(TaskStateParseFailed)
			return err
		}

		t.setState(TaskStateFetchFailed)
		var fetchErr *feed.FetchError
		if !errors.As(err, &fetchErr) {
			err = &feed.FetchError{Source: t.Source, Err: err}
		}
		return err
	}

	t.setState(TaskStateParsing)
	t.Items = t.normalizer.NormalizeFeed(raw, t.Source.Category)
	t.setState(TaskStateNormalized)

	slog.Info("Task completed",
		"type", string(t.GetType()),
		"url", t.Source.URL,
		"category", t.Source.Category,
		"duration", t.GetDuration(),
		"items", len(t.Items))

	return nil
}
