package tasks

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/lysyi3m/feed-digest/app/feed"
)

type TaskType string

const (
	TaskTypeFetchSource TaskType = "fetch_source"
)

// TaskState tracks one source through the pipeline. Normalized, FetchFailed
// and ParseFailed are terminal.
type TaskState string

const (
	TaskStatePending     TaskState = "pending"
	TaskStateFetching    TaskState = "fetching"
	TaskStateParsing     TaskState = "parsing"
	TaskStateNormalized  TaskState = "normalized"
	TaskStateFetchFailed TaskState = "fetch_failed"
	TaskStateParseFailed TaskState = "parse_failed"
)

func (s TaskState) Terminal() bool {
	return s == TaskStateNormalized || s == TaskStateFetchFailed || s == TaskStateParseFailed
}

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetSource() feed.Source
	GetState() TaskState
	Start()
	GetDuration() time.Duration
}

type Task struct {
	ID        string
	Type      TaskType
	Source    feed.Source
	Index     int // discovery order across the whole catalog
	StartedAt *time.Time

	// written only by the goroutine executing the task
	state TaskState
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetSource() feed.Source {
	return t.Source
}

func (t *Task) GetState() TaskState {
	return t.state
}

func (t *Task) setState(state TaskState) {
	t.state = state
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, source feed.Source, index int) Task {
	uniqueID := fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Intn(10000))

	return Task{
		ID:     uniqueID,
		Type:   taskType,
		Source: source,
		Index:  index,
		state:  TaskStatePending,
	}
}
