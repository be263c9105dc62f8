package push

// credentialState tells whether the queue can issue requests.
type credentialState int

const (
	awaitingCredentials credentialState = iota
	ready
)

func (s credentialState) String() string {
	if s == ready {
		return "ready"
	}
	return "awaiting-credentials"
}

// queue is the ordered list of pending interest changes together with the
// credentials they need and the queue-wide failure count. It is not safe for
// concurrent use; Client guards it with its mutex.
type queue struct {
	tasks    []*Task
	appKey   string
	clientID string
	failures int
	halted   bool
}

func (q *queue) state() credentialState {
	if q.appKey == "" || q.clientID == "" {
		return awaitingCredentials
	}
	return ready
}

// runnable reports whether the head task may be started now.
func (q *queue) runnable() bool {
	return !q.halted && len(q.tasks) > 0 && q.state() == ready
}

func (q *queue) push(t *Task) {
	q.tasks = append(q.tasks, t)
}

func (q *queue) head() *Task {
	if len(q.tasks) == 0 {
		return nil
	}
	return q.tasks[0]
}

// pop removes the head task after it succeeded or was skipped.
func (q *queue) pop() {
	if len(q.tasks) == 0 {
		return
	}
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
}

// succeed records a successful request. The failure count is shared by all
// tasks, so a success resets it for the whole queue.
func (q *queue) succeed() {
	q.failures = 0
	q.pop()
}

// fail records a failed attempt of the head task and reports whether the
// queue must halt because maxAttempts was reached.
func (q *queue) fail(maxAttempts int) (attempts int, halt bool) {
	q.failures++
	if t := q.head(); t != nil {
		t.Attempts = q.failures
	}
	if q.failures >= maxAttempts {
		q.halted = true
		return q.failures, true
	}
	return q.failures, false
}

// resume clears a halt and restarts the failure count.
func (q *queue) resume() {
	q.halted = false
	q.failures = 0
}

func (q *queue) snapshot() []Task {
	out := make([]Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, t.clone())
	}
	return out
}
