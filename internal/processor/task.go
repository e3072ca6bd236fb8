// Package processor runs search, filter, sort, analysis and summary tasks
// over article collections on a single background worker. Tasks cross into
// the worker as JSON, are executed in priority order, and identical tasks
// are answered from a short-lived memo instead of being recomputed.
package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType names an operation the worker can run.
type TaskType string

const (
	Search          TaskType = "SEARCH"
	Filter          TaskType = "FILTER"
	Sort            TaskType = "SORT"
	Analyze         TaskType = "ANALYZE"
	GenerateSummary TaskType = "GENERATE_SUMMARY"
)

// Priority orders the ready queue: high before medium before low.
type Priority string

const (
	Low    Priority = "low"
	Medium Priority = "medium"
	High   Priority = "high"
)

func (p Priority) rank() int {
	switch p {
	case High:
		return 2
	case Medium:
		return 1
	default:
		return 0
	}
}

// ParsePriority maps a string to a Priority, defaulting to Medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case Low, Medium, High:
		return Priority(s)
	}
	return Medium
}

var (
	ErrTimeout         = errors.New("task timed out")
	ErrQueueClosed     = errors.New("task queue closed")
	ErrUnknownTaskType = errors.New("unknown task type")
)

// Task is a unit of work. Data is the JSON encoding of the operation's
// request; it is copied on submission and never mutated afterwards.
type Task struct {
	ID       string          `json:"id"`
	Type     TaskType        `json:"type"`
	Data     json.RawMessage `json:"data"`
	Priority Priority        `json:"priority"`
}

// NewTask encodes payload into a task. An empty id is replaced by a UUID.
func NewTask(id string, typ TaskType, priority Priority, payload any) (Task, error) {
	if _, ok := operations[typ]; !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrUnknownTaskType, typ)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("encoding %s payload: %w", typ, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	if priority == "" {
		priority = Medium
	}
	return Task{ID: id, Type: typ, Data: data, Priority: priority}, nil
}

func NewSearchTask(id string, priority Priority, req SearchRequest) (Task, error) {
	return NewTask(id, Search, priority, req)
}

func NewFilterTask(id string, priority Priority, req FilterRequest) (Task, error) {
	return NewTask(id, Filter, priority, req)
}

func NewSortTask(id string, priority Priority, req SortRequest) (Task, error) {
	return NewTask(id, Sort, priority, req)
}

func NewAnalyzeTask(id string, priority Priority, req AnalyzeRequest) (Task, error) {
	return NewTask(id, Analyze, priority, req)
}

func NewSummaryTask(id string, priority Priority, req SummaryRequest) (Task, error) {
	return NewTask(id, GenerateSummary, priority, req)
}

// Result is delivered exactly once per submitted task.
type Result struct {
	TaskID         string          `json:"task_id"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	ProcessingTime time.Duration   `json:"processing_time"`
	FromCache      bool            `json:"from_cache"`
}

// Err returns the task failure, if any.
func (r Result) Err() error {
	switch r.Error {
	case "":
		return nil
	case ErrQueueClosed.Error():
		return ErrQueueClosed
	case ErrTimeout.Error():
		return ErrTimeout
	}
	return &TaskError{TaskID: r.TaskID, Message: r.Error}
}

// TaskError reports a failure inside an operation.
type TaskError struct {
	TaskID  string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: %s", e.TaskID, e.Message)
}

// Decode unmarshals a successful result into dst.
func Decode(r Result, dst any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if err := json.Unmarshal(r.Result, dst); err != nil {
		return fmt.Errorf("decoding result of task %s: %w", r.TaskID, err)
	}
	return nil
}
