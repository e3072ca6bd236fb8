package processor

import (
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"time"
)

type operation func(data json.RawMessage) (any, error)

var operations = map[TaskType]operation{
	Search:          decodeAndRun(runSearch),
	Filter:          decodeAndRun(runFilter),
	Sort:            decodeAndRun(runSort),
	Analyze:         decodeAndRun(runAnalyze),
	GenerateSummary: decodeAndRun(runSummary),
}

func decodeAndRun[Req any, Resp any](fn func(Req) (Resp, error)) operation {
	return func(data json.RawMessage) (any, error) {
		var req Req
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decoding request: %w", err)
		}
		return fn(req)
	}
}

// Execute runs a task synchronously on the calling goroutine. It is what the
// worker runs, and what callers fall back to when the queue is unavailable.
// A panic inside the operation is converted into a failed result.
func Execute(t Task) (res Result) {
	start := time.Now()
	res.TaskID = t.ID
	defer func() {
		if p := recover(); p != nil {
			res.Result = nil
			res.Error = fmt.Sprintf("panic: %v", p)
			log.Printf("task %s panicked: %v\n%s", t.ID, p, debug.Stack())
		}
		res.ProcessingTime = time.Since(start)
	}()

	op, ok := operations[t.Type]
	if !ok {
		res.Error = fmt.Sprintf("%v: %s", ErrUnknownTaskType, t.Type)
		return res
	}

	out, err := op(t.Data)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		res.Error = fmt.Sprintf("encoding result: %v", err)
		return res
	}
	res.Result = encoded
	return res
}
