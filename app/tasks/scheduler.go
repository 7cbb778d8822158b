package tasks

import (
	"cmp"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/feed-digest/app/feed"
)

var _ Aggregator = (*Scheduler)(nil)

type Options struct {
	// Concurrency bounds in-flight sources; zero means unbounded.
	Concurrency int
	// WaveDelay is slept before each wave after the first.
	WaveDelay  time.Duration
	SortPolicy SortPolicy
}

type Scheduler struct {
	fetcher     SourceFetcher
	normalizer  *feed.Normalizer
	concurrency int
	waveDelay   time.Duration
	sortPolicy  SortPolicy
	sleep       func(ctx context.Context, d time.Duration)
}

func NewScheduler(fetcher SourceFetcher, normalizer *feed.Normalizer, opts Options) *Scheduler {
	return &Scheduler{
		fetcher:     fetcher,
		normalizer:  normalizer,
		concurrency: max(opts.Concurrency, 0),
		waveDelay:   opts.WaveDelay,
		sortPolicy:  cmp.Or(opts.SortPolicy, SortByTimestamp),
		sleep:       sleepContext,
	}
}

// Run fetches every source in catalog and returns once each one has reached a
// terminal state. Failures are collected, never returned.
func (s *Scheduler) Run(ctx context.Context, catalog *feed.Catalog) *Result {
	run := newRun(catalog)

	tasks := make([]*FetchSourceTask, 0)
	for i, source := range catalog.Sources() {
		tasks = append(tasks, NewFetchSourceTask(source, i, s.fetcher, s.normalizer))
	}

	slog.Debug("Scheduling sources", "count", len(tasks), "concurrency", s.concurrency, "wave_delay", s.waveDelay)

	var wg sync.WaitGroup
	wg.Add(len(tasks))

	if s.concurrency == 0 {
		for _, task := range tasks {
			go func() {
				defer wg.Done()
				s.executeTask(ctx, -1, run, task)
			}()
		}
	} else {
		taskQueue := make(chan *FetchSourceTask)
		for i := 0; i < min(s.concurrency, len(tasks)); i++ {
			go s.worker(ctx, i, taskQueue, run, &wg)
		}
		s.dispatch(ctx, taskQueue, tasks)
	}

	wg.Wait()

	result := run.finish(s.sortPolicy)
	observeRun(result)
	slog.Info("Aggregation completed",
		"sources", result.Sources,
		"completed", result.Completed,
		"errors", len(result.Errors),
		"duration", result.FinishedAt.Sub(result.StartedAt))

	return result
}

// dispatch releases tasks in waves of s.concurrency. The unbuffered queue
// keeps at most s.concurrency tasks in flight.
func (s *Scheduler) dispatch(ctx context.Context, taskQueue chan<- *FetchSourceTask, tasks []*FetchSourceTask) {
	defer close(taskQueue)

	for i, task := range tasks {
		if i > 0 && i%s.concurrency == 0 && s.waveDelay > 0 {
			slog.Debug("Delaying next wave", "wave", i/s.concurrency+1, "delay", s.waveDelay)
			s.sleep(ctx, s.waveDelay)
		}
		taskQueue <- task
	}
}

func (s *Scheduler) worker(ctx context.Context, id int, taskQueue <-chan *FetchSourceTask, run *run, wg *sync.WaitGroup) {
	for task := range taskQueue {
		func() {
			defer wg.Done()
			s.executeTask(ctx, id, run, task)
		}()
	}
}

func (s *Scheduler) executeTask(ctx context.Context, workerID int, run *run, task *FetchSourceTask) {
	task.Start()

	err := task.Execute(ctx)
	observeTask(task)
	if err != nil {
		slog.Error("Worker task execution failed",
			"worker_id", workerID,
			"type", string(task.GetType()),
			"id", task.GetID(),
			"url", task.Source.URL,
			"state", string(task.GetState()),
			"error", err)
		run.fail(task, err)
		return
	}

	run.add(task)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

type entry struct {
	item   feed.NormalizedItem
	source int
	pos    int
}

type failureEntry struct {
	failure Failure
	source  int
}

// run is the mutable state of one aggregation. Only the scheduler's run
// methods touch it.
type run struct {
	catalog   *feed.Catalog
	startedAt time.Time
	completed atomic.Int64

	mu       sync.Mutex
	buckets  map[string][]entry
	failures []failureEntry
}

func newRun(catalog *feed.Catalog) *run {
	buckets := make(map[string][]entry, len(catalog.Categories))
	for _, category := range catalog.Categories {
		buckets[category.Name] = []entry{}
	}
	return &run{
		catalog:   catalog,
		startedAt: time.Now(),
		buckets:   buckets,
	}
}

func (r *run) add(task *FetchSourceTask) {
	entries := make([]entry, len(task.Items))
	for i, item := range task.Items {
		entries[i] = entry{item: item, source: task.Index, pos: i}
	}

	r.mu.Lock()
	r.buckets[task.Source.Category] = append(r.buckets[task.Source.Category], entries...)
	r.mu.Unlock()

	r.completed.Add(1)
}

func (r *run) fail(task *FetchSourceTask, err error) {
	r.mu.Lock()
	r.failures = append(r.failures, failureEntry{
		failure: Failure{Source: task.Source, Cause: err},
		source:  task.Index,
	})
	r.mu.Unlock()

	r.completed.Add(1)
}
