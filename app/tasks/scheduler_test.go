package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/feed-digest/app/feed"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// MockFetcher returns canned feeds and errors keyed by URL
type MockFetcher struct {
	feeds map[string]*feed.RawFeed
	errs  map[string]error
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	mu    sync.Mutex
	calls []string
	times []time.Time
}

func (m *MockFetcher) Fetch(ctx context.Context, source feed.Source) (*feed.RawFeed, error) {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		prev := m.maxInFlight.Load()
		if current <= prev || m.maxInFlight.CompareAndSwap(prev, current) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, source.URL)
	m.times = append(m.times, time.Now())
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	if err, ok := m.errs[source.URL]; ok {
		return nil, err
	}
	if raw, ok := m.feeds[source.URL]; ok {
		return raw, nil
	}
	return &feed.RawFeed{Items: []feed.RawItem{}}, nil
}

func item(title, date string) feed.RawItem {
	extra := map[string]any{"title": title, "link": "http://example.com/" + title}
	if date != "" {
		extra["pubDate"] = date
	}
	return feed.RawItem{Extra: extra}
}

func rawFeed(name string, items ...feed.RawItem) *feed.RawFeed {
	return &feed.RawFeed{
		Meta:  feed.FeedMeta{Extra: map[string]any{"title": name, "link": "http://" + name}},
		Items: items,
	}
}

func catalog(categories ...feed.Category) *feed.Catalog {
	return &feed.Catalog{Categories: categories}
}

func newTestScheduler(fetcher SourceFetcher, opts Options) *Scheduler {
	return NewScheduler(fetcher, feed.NewNormalizer(feed.FallbackKeep, 0), opts)
}

func TestRunIsolatesFailures(t *testing.T) {
	fetcher := &MockFetcher{
		feeds: map[string]*feed.RawFeed{
			"http://a": rawFeed("A", item("one", "2024-01-01T00:00:00Z"), item("two", "2024-01-02T00:00:00Z")),
			"http://c": rawFeed("C", item("three", "2024-01-03T00:00:00Z")),
		},
		errs: map[string]error{
			"http://b": &feed.FetchError{Source: feed.Source{URL: "http://b", Category: "tech"}, Err: errors.New("connection reset")},
			"http://d": &feed.ParseError{Source: feed.Source{URL: "http://d", Category: "art"}, Err: errors.New("bad xml")},
		},
	}

	for _, concurrency := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			scheduler := newTestScheduler(fetcher, Options{Concurrency: concurrency})
			result := scheduler.Run(context.Background(), catalog(
				feed.Category{Name: "tech", URLs: []string{"http://a", "http://b"}},
				feed.Category{Name: "art", URLs: []string{"http://c", "http://d"}},
				feed.Category{Name: "empty", URLs: nil},
			))

			if result.Sources != 4 || result.Completed != 4 {
				t.Errorf("Expected 4 sources completed, got %d/%d", result.Completed, result.Sources)
			}
			if len(result.Errors) != 2 {
				t.Fatalf("Expected 2 errors, got %d", len(result.Errors))
			}
			if result.Errors[0].Source.URL != "http://b" || result.Errors[1].Source.URL != "http://d" {
				t.Errorf("Expected errors in discovery order, got %v", result.ErrorMessages())
			}
			if len(result.Groups["tech"]) != 2 {
				t.Errorf("Expected 2 tech items, got %d", len(result.Groups["tech"]))
			}
			if len(result.Groups["art"]) != 1 {
				t.Errorf("Expected 1 art item, got %d", len(result.Groups["art"]))
			}
			empty, ok := result.Groups["empty"]
			if !ok || empty == nil || len(empty) != 0 {
				t.Errorf("Expected empty category to be present and empty, got %v (present=%t)", empty, ok)
			}
			if len(result.Groups) != 3 {
				t.Errorf("Expected only configured categories, got %d groups", len(result.Groups))
			}
		})
	}
}

func TestRunSortsByTimestamp(t *testing.T) {
	fetcher := &MockFetcher{
		feeds: map[string]*feed.RawFeed{
			"http://a": rawFeed("A", item("old", "2024-01-01T00:00:00Z"), item("undated", "not-a-date")),
			"http://b": rawFeed("B", item("new", "2024-03-01T00:00:00Z"), item("mid", "2024-02-01T00:00:00Z"), item("also-undated", "")),
		},
	}

	result := newTestScheduler(fetcher, Options{}).Run(context.Background(), catalog(
		feed.Category{Name: "tech", URLs: []string{"http://a", "http://b"}},
	))

	var titles []string
	for _, it := range result.Groups["tech"] {
		titles = append(titles, it.Title)
	}
	expected := "new,mid,old,undated,also-undated"
	if got := strings.Join(titles, ","); got != expected {
		t.Errorf("Expected order %s, got %s", expected, got)
	}

	first := result.Groups["tech"][0]
	if first.FeedName != "B" || first.FeedLink != "http://B" || first.Category != "tech" {
		t.Errorf("Expected item tagged with feed metadata, got %+v", first)
	}
}

func TestRunSortsSubstitutedTimestampsLast(t *testing.T) {
	fetcher := &MockFetcher{
		feeds: map[string]*feed.RawFeed{
			"http://a": rawFeed("A", item("nodate", ""), item("real", "2024-01-01T00:00:00Z")),
		},
	}

	normalizer := feed.NewNormalizer(feed.FallbackNow, 0)
	result := NewScheduler(fetcher, normalizer, Options{}).Run(context.Background(), catalog(
		feed.Category{Name: "tech", URLs: []string{"http://a"}},
	))

	items := result.Groups["tech"]
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got: %d", len(items))
	}
	if items[0].Title != "real" || items[1].Title != "nodate" {
		t.Fatalf("Expected real before nodate, got: %s, %s", items[0].Title, items[1].Title)
	}
	if !items[1].Timestamp.Substituted {
		t.Fatalf("Expected the undated item to carry a substituted timestamp")
	}
}

func TestRunSortsByTitle(t *testing.T) {
	fetcher := &MockFetcher{
		feeds: map[string]*feed.RawFeed{
			"http://a": rawFeed("A", item("banana", ""), item("Apple", "")),
			"http://b": rawFeed("B", item("cherry", ""), item("apple", "")),
		},
	}

	result := newTestScheduler(fetcher, Options{SortPolicy: SortByTitle}).Run(context.Background(), catalog(
		feed.Category{Name: "zeta", URLs: []string{"http://a"}},
		feed.Category{Name: "alpha", URLs: []string{"http://b"}},
	))

	if got := strings.Join(result.Categories, ","); got != "alpha,zeta" {
		t.Errorf("Expected categories sorted, got %s", got)
	}

	var titles []string
	for _, it := range result.Items() {
		titles = append(titles, it.Title)
	}
	if got := strings.Join(titles, ","); got != "apple,cherry,Apple,banana" {
		t.Errorf("Expected titles sorted within categories, got %s", got)
	}
}

func TestRunKeepsDiscoveryOrder(t *testing.T) {
	fetcher := &MockFetcher{
		feeds: map[string]*feed.RawFeed{
			"http://a": rawFeed("A", item("a1", "2024-01-01T00:00:00Z"), item("a2", "2024-05-01T00:00:00Z")),
			"http://b": rawFeed("B", item("b1", "2024-03-01T00:00:00Z")),
		},
		delay: 5 * time.Millisecond,
	}

	result := newTestScheduler(fetcher, Options{SortPolicy: SortNone}).Run(context.Background(), catalog(
		feed.Category{Name: "x", URLs: []string{"http://b", "http://a"}},
		feed.Category{Name: "w", URLs: nil},
	))

	var titles []string
	for _, it := range result.Groups["x"] {
		titles = append(titles, it.Title)
	}
	if got := strings.Join(titles, ","); got != "b1,a1,a2" {
		t.Errorf("Expected discovery order, got %s", got)
	}
	if got := strings.Join(result.Categories, ","); got != "x,w" {
		t.Errorf("Expected configuration order, got %s", got)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	fetcher := &MockFetcher{delay: 20 * time.Millisecond}

	urls := make([]string, 9)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://s%d", i)
	}

	result := newTestScheduler(fetcher, Options{Concurrency: 3}).Run(context.Background(), catalog(
		feed.Category{Name: "c", URLs: urls},
	))

	if result.Completed != 9 {
		t.Errorf("Expected 9 completed sources, got %d", result.Completed)
	}
	if peak := fetcher.maxInFlight.Load(); peak > 3 {
		t.Errorf("Expected at most 3 in-flight fetches, got %d", peak)
	}
}

func TestRunDelaysWaves(t *testing.T) {
	fetcher := &MockFetcher{}

	scheduler := newTestScheduler(fetcher, Options{Concurrency: 2, WaveDelay: time.Hour})
	var mu sync.Mutex
	var sleeps []time.Duration
	scheduler.sleep = func(ctx context.Context, d time.Duration) {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
	}

	result := scheduler.Run(context.Background(), catalog(
		feed.Category{Name: "c", URLs: []string{"http://1", "http://2", "http://3", "http://4", "http://5"}},
	))

	if result.Completed != 5 {
		t.Errorf("Expected 5 completed sources, got %d", result.Completed)
	}
	// waves: [1 2] [3 4] [5]
	if len(sleeps) != 2 {
		t.Errorf("Expected 2 inter-wave delays, got %d", len(sleeps))
	}
	for _, d := range sleeps {
		if d != time.Hour {
			t.Errorf("Expected delay of 1h, got %v", d)
		}
	}
}

func TestRunUnboundedHasNoDelay(t *testing.T) {
	scheduler := newTestScheduler(&MockFetcher{}, Options{WaveDelay: time.Hour})
	scheduler.sleep = func(ctx context.Context, d time.Duration) {
		t.Error("Expected no delay when concurrency is unbounded")
	}

	result := scheduler.Run(context.Background(), catalog(
		feed.Category{Name: "c", URLs: []string{"http://1", "http://2", "http://3"}},
	))
	if result.Completed != 3 {
		t.Errorf("Expected 3 completed sources, got %d", result.Completed)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestScheduler(&MockFetcher{}, Options{Concurrency: 1, WaveDelay: time.Millisecond}).Run(ctx, catalog(
		feed.Category{Name: "c", URLs: []string{"http://1", "http://2"}},
	))

	if result.Completed != 2 || len(result.Errors) != 2 {
		t.Fatalf("Expected every source to fail once, got %d completed, %d errors", result.Completed, len(result.Errors))
	}
	var fetchErr *feed.FetchError
	if !errors.As(result.Errors[0].Cause, &fetchErr) || !errors.Is(fetchErr, context.Canceled) {
		t.Errorf("Expected FetchError wrapping context.Canceled, got %v", result.Errors[0].Cause)
	}
}

func TestRunEmptyCatalog(t *testing.T) {
	result := newTestScheduler(&MockFetcher{}, Options{Concurrency: 4}).Run(context.Background(), catalog())
	if result.Sources != 0 || len(result.Groups) != 0 || len(result.Errors) != 0 {
		t.Errorf("Expected empty result, got %+v", result)
	}
}

func TestTaskStates(t *testing.T) {
	source := feed.Source{URL: "http://x", Category: "c"}
	normalizer := feed.NewNormalizer(feed.FallbackKeep, 0)

	tests := []struct {
		name     string
		fetcher  *MockFetcher
		expected TaskState
	}{
		{"normalized", &MockFetcher{feeds: map[string]*feed.RawFeed{"http://x": rawFeed("X", item("t", ""))}}, TaskStateNormalized},
		{"fetch failed", &MockFetcher{errs: map[string]error{"http://x": errors.New("dns failure")}}, TaskStateFetchFailed},
		{"parse failed", &MockFetcher{errs: map[string]error{"http://x": &feed.ParseError{Source: source, Err: errors.New("bad")}}}, TaskStateParseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := NewFetchSourceTask(source, 0, tt.fetcher, normalizer)
			if task.GetState() != TaskStatePending {
				t.Errorf("Expected pending state, got %s", task.GetState())
			}

			err := task.Execute(context.Background())
			if task.GetState() != tt.expected {
				t.Errorf("Expected state %s, got %s", tt.expected, task.GetState())
			}
			if !task.GetState().Terminal() {
				t.Errorf("Expected terminal state, got %s", task.GetState())
			}

			if tt.expected == TaskStateFetchFailed {
				var fetchErr *feed.FetchError
				if !errors.As(err, &fetchErr) {
					t.Errorf("Expected plain errors to be wrapped in FetchError, got %v", err)
				}
			}
		})
	}
}

func TestParseSortPolicy(t *testing.T) {
	for _, s := range []string{"timestamp", "title", "none", ""} {
		if _, err := ParseSortPolicy(s); err != nil {
			t.Errorf("Expected %q to be valid, got %v", s, err)
		}
	}
	if _, err := ParseSortPolicy("shuffle"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

const rssBody = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Site A</title><link>http://a.example</link>
<item><title>Hello</title><link>http://a.example/hello</link><pubDate>Mon, 01 Jan 2024 00:00:00 GMT</pubDate></item>
</channel></rss>`

func TestRunEndToEnd(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a/feed.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			w.Write([]byte(rssBody))
		case "/b/feed.json":
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}
	}))
	defer server.Close()
	defer close(release)

	fetcher := feed.NewFetcher(&http.Client{}, feed.NewParser(), "test", 100*time.Millisecond)
	scheduler := newTestScheduler(fetcher, Options{Concurrency: 2})

	aURL, bURL := server.URL+"/a/feed.xml", server.URL+"/b/feed.json"
	result := scheduler.Run(context.Background(), catalog(
		feed.Category{Name: "tech", URLs: []string{aURL, bURL}},
	))

	tech := result.Groups["tech"]
	if len(tech) != 1 || tech[0].Title != "Hello" {
		t.Fatalf("Expected one item titled 'Hello', got %+v", tech)
	}
	if tech[0].FeedName != "Site A" || tech[0].Link != "http://a.example/hello" {
		t.Errorf("Unexpected item %+v", tech[0])
	}
	if tech[0].Timestamp.Millis != time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("Expected parsed timestamp, got %+v", tech[0].Timestamp)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(result.Errors))
	}
	if result.Errors[0].Source.URL != bURL {
		t.Errorf("Expected error for %s, got %s", bURL, result.Errors[0].Source.URL)
	}
	if !strings.Contains(result.Errors[0].Error(), bURL) {
		t.Errorf("Expected error message to reference %s, got %s", bURL, result.Errors[0].Error())
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	fetcher := &MockFetcher{
		feeds: map[string]*feed.RawFeed{"http://ok": rawFeed("ok", item("One", ""), item("Two", ""))},
		errs:  map[string]error{"http://bad": &feed.ParseError{Err: errors.New("bad markup")}},
	}

	normalizedBefore := testutil.ToFloat64(sourcesProcessed.WithLabelValues(string(TaskStateNormalized)))
	parseFailedBefore := testutil.ToFloat64(sourcesProcessed.WithLabelValues(string(TaskStateParseFailed)))

	newTestScheduler(fetcher, Options{}).Run(context.Background(), catalog(
		feed.Category{Name: "a", URLs: []string{"http://ok", "http://bad"}},
	))

	if got := testutil.ToFloat64(sourcesProcessed.WithLabelValues(string(TaskStateNormalized))) - normalizedBefore; got != 1 {
		t.Fatalf("Expected 1 normalized source recorded, got: %v", got)
	}
	if got := testutil.ToFloat64(sourcesProcessed.WithLabelValues(string(TaskStateParseFailed))) - parseFailedBefore; got != 1 {
		t.Fatalf("Expected 1 parse failure recorded, got: %v", got)
	}
	if got := testutil.ToFloat64(lastRunItems); got != 2 {
		t.Fatalf("Expected last run items 2, got: %v", got)
	}
	if got := testutil.ToFloat64(lastRunErrors); got != 1 {
		t.Fatalf("Expected last run errors 1, got: %v", got)
	}
}
