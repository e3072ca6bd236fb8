package processor

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/TobiSchelling/AIMindset/internal/store"
)

const (
	DefaultMemoTTL = 5 * time.Minute
	DefaultTimeout = 30 * time.Second
)

// Recorder receives task outcomes and queue depth changes. Implementations
// must be safe for concurrent use.
type Recorder interface {
	TaskFinished(taskType string, outcome string, d time.Duration)
	QueueDepth(n int)
}

// Task outcomes reported to a Recorder.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeCached    = "cached"
	OutcomeDropped   = "dropped"
)

type pending struct {
	task  Task
	seq   uint64
	reply chan Result
}

// readyQueue orders pending tasks by priority, then submission order.
type readyQueue []*pending

func (q readyQueue) Len() int { return len(q) }
func (q readyQueue) Less(i, j int) bool {
	ri, rj := q[i].task.Priority.rank(), q[j].task.Priority.rank()
	if ri != rj {
		return ri > rj
	}
	return q[i].seq < q[j].seq
}
func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *readyQueue) Push(x any)   { *q = append(*q, x.(*pending)) }
func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

type memoEntry struct {
	result    json.RawMessage
	expiresAt time.Time
}

// Queue executes tasks one at a time on a single worker goroutine.
type Queue struct {
	memoTTL  time.Duration
	timeout  time.Duration
	now      func() time.Time
	recorder Recorder
	onDone   func(Result)

	mu      sync.Mutex
	ready   readyQueue
	seq     uint64
	memo    map[string]memoEntry
	paused  bool
	closed  bool
	started bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMemoTTL sets how long identical tasks are answered from the memo.
// Zero disables memoization.
func WithMemoTTL(d time.Duration) QueueOption {
	return func(q *Queue) { q.memoTTL = d }
}

// WithTimeout sets the caller-side deadline used by Do.
func WithTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRecorder reports task outcomes, e.g. to Prometheus.
func WithRecorder(r Recorder) QueueOption {
	return func(q *Queue) { q.recorder = r }
}

// WithOnDone registers a callback invoked on the worker, in completion
// order, after each result is delivered.
func WithOnDone(fn func(Result)) QueueOption {
	return func(q *Queue) { q.onDone = fn }
}

// WithQueueClock replaces time.Now for memo expiry, for tests.
func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates a stopped queue. Tasks may be submitted before Start;
// they run once the worker is started.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		memoTTL: DefaultMemoTTL,
		timeout: DefaultTimeout,
		now:     time.Now,
		memo:    make(map[string]memoEntry),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker. It stops when ctx is done or Close is called.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started || q.closed {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.run(ctx)
}

// Close stops the worker after any running task finishes and fails every
// task still queued with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		started := q.started
		q.mu.Unlock()
		if started {
			<-q.done
		}
		return
	}
	q.closed = true
	started := q.started
	q.mu.Unlock()

	close(q.stop)
	if started {
		<-q.done
	} else {
		q.drain()
	}
}

// Pause holds queued tasks until Resume. A running task is not affected.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume releases tasks held by Pause.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of queued tasks, excluding a running one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready)
}

// Timeout is the deadline Do applies.
func (q *Queue) Timeout() time.Duration {
	return q.timeout
}

// Submit enqueues t and returns the channel its result will arrive on.
// The channel is buffered, so a caller that stops listening never blocks
// the worker.
func (q *Queue) Submit(t Task) (<-chan Result, error) {
	if _, ok := operations[t.Type]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, t.Type)
	}
	t.Data = append(json.RawMessage(nil), t.Data...)
	if t.Priority == "" {
		t.Priority = Medium
	}

	reply := make(chan Result, 1)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	q.seq++
	heap.Push(&q.ready, &pending{task: t, seq: q.seq, reply: reply})
	depth := len(q.ready)
	q.mu.Unlock()

	if q.recorder != nil {
		q.recorder.QueueDepth(depth)
	}
	q.signal()
	return reply, nil
}

// Do submits t and waits for its result, the queue timeout, or ctx. On
// timeout the task is abandoned, not cancelled: it may still run and its
// late result is discarded.
func (q *Queue) Do(ctx context.Context, t Task) (Result, error) {
	reply, err := q.Submit(t)
	if err != nil {
		return Result{TaskID: t.ID}, err
	}

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r, r.Err()
	case <-timer.C:
		return Result{TaskID: t.ID, Error: ErrTimeout.Error()}, ErrTimeout
	case <-ctx.Done():
		return Result{TaskID: t.ID, Error: ctx.Err().Error()}, ctx.Err()
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	defer q.drain()

	for {
		if p := q.next(); p != nil {
			q.process(p)
			// Let other goroutines in between tasks.
			runtime.Gosched()
			continue
		}

		select {
		case <-q.wake:
		case <-q.stop:
			return
		case <-ctx.Done():
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			return
		}
	}
}

func (q *Queue) next() *pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused || q.closed || len(q.ready) == 0 {
		return nil
	}
	return heap.Pop(&q.ready).(*pending)
}

func (q *Queue) process(p *pending) {
	key := memoKey(p.task)
	if r, ok := q.memoLookup(key, p.task.ID); ok {
		q.finish(p, r, OutcomeCached)
		return
	}

	r := Execute(p.task)
	outcome := OutcomeCompleted
	if r.Error != "" {
		outcome = OutcomeFailed
		log.Printf("Task %s (%s) failed: %s", p.task.ID, p.task.Type, r.Error)
	} else {
		q.memoStore(key, r.Result)
	}
	q.finish(p, r, outcome)
}

func (q *Queue) finish(p *pending, r Result, outcome string) {
	p.reply <- r
	if q.recorder != nil {
		q.recorder.TaskFinished(string(p.task.Type), outcome, r.ProcessingTime)
		q.recorder.QueueDepth(q.Len())
	}
	if q.onDone != nil {
		q.onDone(r)
	}
}

func (q *Queue) drain() {
	q.mu.Lock()
	items := q.ready
	q.ready = nil
	q.mu.Unlock()

	for _, p := range items {
		p.reply <- Result{TaskID: p.task.ID, Error: ErrQueueClosed.Error()}
		if q.recorder != nil {
			q.recorder.TaskFinished(string(p.task.Type), OutcomeDropped, 0)
		}
	}
	if q.recorder != nil && len(items) > 0 {
		q.recorder.QueueDepth(0)
	}
}

func memoKey(t Task) string {
	return store.Hash(string(t.Type) + ":" + string(t.Data))
}

func (q *Queue) memoLookup(key, taskID string) (Result, bool) {
	if q.memoTTL <= 0 {
		return Result{}, false
	}
	start := time.Now()
	q.mu.Lock()
	e, ok := q.memo[key]
	if ok && !q.now().Before(e.expiresAt) {
		delete(q.memo, key)
		ok = false
	}
	q.mu.Unlock()
	if !ok {
		return Result{}, false
	}
	return Result{
		TaskID:         taskID,
		Result:         e.result,
		FromCache:      true,
		ProcessingTime: time.Since(start),
	}, true
}

func (q *Queue) memoStore(key string, result json.RawMessage) {
	if q.memoTTL <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for k, e := range q.memo {
		if !now.Before(e.expiresAt) {
			delete(q.memo, k)
		}
	}
	q.memo[key] = memoEntry{result: result, expiresAt: now.Add(q.memoTTL)}
}

// ClearMemo drops every memoized result.
func (q *Queue) ClearMemo() {
	q.mu.Lock()
	q.memo = make(map[string]memoEntry)
	q.mu.Unlock()
}
