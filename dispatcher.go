package eventflit

import (
	"fmt"
	"sync"
)

// dispatcher runs host callbacks one at a time, in the order they were
// queued, on a goroutine that holds no client locks. Callbacks may therefore
// call back into the client.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	running bool

	// onPanic receives the recovered value of a panicking callback.
	onPanic func(v any)
}

func newDispatcher(onPanic func(any)) *dispatcher {
	return &dispatcher{onPanic: onPanic}
}

func (d *dispatcher) dispatch(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.mu.Unlock()

	go d.drain()
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.running = false
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.run(fn)
	}
}

func (d *dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(r)
		}
	}()
	fn()
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("callback panicked: %w", err)
	}
	return fmt.Errorf("callback panicked: %v", v)
}
