package push

import (
	"net/http"
	"time"
)

// Operation is the kind of interest change a Task performs.
type Operation int

const (
	OpSubscribe   Operation = iota // POST one interest
	OpUnsubscribe                  // DELETE one interest
	OpReplaceAll                   // PUT the whole interest set
)

var operationNames = [...]string{
	OpSubscribe:   "subscribe",
	OpUnsubscribe: "unsubscribe",
	OpReplaceAll:  "replace-all",
}

func (op Operation) String() string {
	if int(op) >= 0 && int(op) < len(operationNames) {
		return operationNames[op]
	}
	return "unknown"
}

func (op Operation) method() string {
	switch op {
	case OpUnsubscribe:
		return http.MethodDelete
	case OpReplaceAll:
		return http.MethodPut
	default:
		return http.MethodPost
	}
}

// Task is one queued interest change.
type Task struct {
	ID        string
	Op        Operation
	Interests []string
	Attempts  int // failed attempts so far
	Enqueued  time.Time
}

func (t *Task) clone() Task {
	cp := *t
	cp.Interests = append([]string(nil), t.Interests...)
	return cp
}

// retryDelay is the wait before the next attempt after attempts failures.
func retryDelay(attempts int, unit time.Duration) time.Duration {
	return time.Duration(attempts*attempts) * unit
}
