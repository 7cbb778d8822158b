package tasks

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/lysyi3m/feed-digest/app/feed"
)

type SortPolicy string

const (
	// SortByTimestamp orders items newest first; unparsed timestamps go last.
	SortByTimestamp SortPolicy = "timestamp"
	// SortByTitle orders categories lexicographically and items by title.
	SortByTitle SortPolicy = "title"
	// SortNone keeps discovery order.
	SortNone SortPolicy = "none"
)

func ParseSortPolicy(s string) (SortPolicy, error) {
	switch policy := SortPolicy(s); policy {
	case SortByTimestamp, SortByTitle, SortNone:
		return policy, nil
	case "":
		return SortByTimestamp, nil
	default:
		return "", fmt.Errorf("unknown sort policy: %s", s)
	}
}

// Failure records one source that could not be fetched or parsed.
type Failure struct {
	Source feed.Source
	Cause  error
}

func (f Failure) Error() string {
	return f.Cause.Error()
}

func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{
		"url":      f.Source.URL,
		"category": f.Source.Category,
		"error":    f.Cause.Error(),
	})
}

// Result is the frozen outcome of one run.
type Result struct {
	Categories []string                         `json:"categories"`
	Groups     map[string][]feed.NormalizedItem `json:"groups"`
	Errors     []Failure                        `json:"errors"`
	Sources    int                              `json:"sources"`
	Completed  int                              `json:"completed"`
	StartedAt  time.Time                        `json:"startedAt"`
	FinishedAt time.Time                        `json:"finishedAt"`
}

// Items flattens the groups in category order.
func (r *Result) Items() []feed.NormalizedItem {
	var items []feed.NormalizedItem
	for _, category := range r.Categories {
		items = append(items, r.Groups[category]...)
	}
	return items
}

func (r *Result) ItemCount() int {
	return len(r.Items())
}

func (r *Result) ErrorMessages() []string {
	return lo.Map(r.Errors, func(failure Failure, _ int) string {
		return failure.Error()
	})
}

func (r *run) finish(policy SortPolicy) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &Result{
		Categories: r.catalog.Names(),
		Groups:     make(map[string][]feed.NormalizedItem, len(r.buckets)),
		Errors:     make([]Failure, 0, len(r.failures)),
		Sources:    len(r.catalog.Sources()),
		Completed:  int(r.completed.Load()),
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
	}

	compare := entryComparator(policy)
	for category, entries := range r.buckets {
		slices.SortStableFunc(entries, compare)

		items := make([]feed.NormalizedItem, len(entries))
		for i, e := range entries {
			items[i] = e.item
		}
		result.Groups[category] = items
	}

	if policy == SortByTitle {
		slices.Sort(result.Categories)
	}

	slices.SortFunc(r.failures, func(a, b failureEntry) int {
		return cmp.Compare(a.source, b.source)
	})
	for _, f := range r.failures {
		result.Errors = append(result.Errors, f.failure)
	}

	return result
}

func byDiscovery(a, b entry) int {
	return cmp.Or(cmp.Compare(a.source, b.source), cmp.Compare(a.pos, b.pos))
}

func entryComparator(policy SortPolicy) func(a, b entry) int {
	switch policy {
	case SortByTitle:
		collator := collate.New(language.Und)
		return func(a, b entry) int {
			return cmp.Or(collator.CompareString(a.item.Title, b.item.Title), byDiscovery(a, b))
		}
	case SortNone:
		return byDiscovery
	default:
		return func(a, b entry) int {
			ta, tb := a.item.Timestamp, b.item.Timestamp
			// substituted timestamps sort with the undated items
			da, db := dated(ta), dated(tb)
			if da != db {
				if da {
					return -1
				}
				return 1
			}
			if da {
				if c := cmp.Compare(tb.Millis, ta.Millis); c != 0 {
					return c
				}
			}
			return byDiscovery(a, b)
		}
	}
}

func dated(ts feed.Timestamp) bool {
	return ts.Parsed && !ts.Substituted
}
